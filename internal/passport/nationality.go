package passport

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// nationalities maps ISO 3166-1 alpha-3 codes read from the MRZ to nationality names.
var nationalities = map[string]string{
	"ABW": "Aruban",
	"AFG": "Afghan",
	"AGO": "Angolan",
	"AIA": "Anguillan",
	"ALB": "Albanian",
	"AND": "Andorran",
	"ARE": "Emirati",
	"ARG": "Argentinian",
	"ARM": "Armenian",
	"ASM": "American Samoan",
	"ATG": "Antiguan",
	"AUS": "Australian",
	"AUT": "Austrian",
	"AZE": "Azerbaijani",
	"BDI": "Burundian",
	"BEL": "Belgian",
	"BEN": "Beninese",
	"BFA": "Burkinabe",
	"BGD": "Bangladeshi",
	"BGR": "Bulgarian",
	"BHR": "Bahraini",
	"BHS": "Bahamian",
	"BIH": "Bosnian",
	"BLR": "Belarusian",
	"BLZ": "Belizean",
	"BMU": "Bermudian",
	"BOL": "Bolivian",
	"BRA": "Brazilian",
	"BRB": "Barbadian",
	"BRN": "Bruneian",
	"BTN": "Bhutanese",
	"BWA": "Botswanan",
	"CAF": "Central African",
	"CAN": "Canadian",
	"CHE": "Swiss",
	"CHL": "Chilean",
	"CHN": "Chinese",
	"CIV": "Ivorian",
	"CMR": "Cameroonian",
	"COD": "Congolese",
	"COG": "Congolese",
	"COK": "Cook Islander",
	"COL": "Colombian",
	"COM": "Comorian",
	"CPV": "Cape Verdean",
	"CRI": "Costa Rican",
	"CUB": "Cuban",
	"CYM": "Caymanian",
	"CYP": "Cypriot",
	"CZE": "Czech",
	"DEU": "German",
	"DJI": "Djibouti",
	"DMA": "Dominica",
	"DNK": "Denmark",
	"DOM": "Dominican Republic",
	"DZA": "Algerian",
	"ECU": "Ecuadorean",
	"EGY": "Egyptian",
	"ERI": "Eritrean",
	"ESP": "Spanish",
	"EST": "Estonian",
	"ETH": "Ethiopian",
	"FIN": "Finnish",
	"FJI": "Fijian",
	"FLK": "Falkland Islander",
	"FRA": "French",
	"FRO": "Faroese",
	"FSM": "Micronesian",
	"GAB": "Gabonese",
	"GBD": "British",
	"GBN": "British",
	"GBO": "British",
	"GBP": "British",
	"GBR": "British",
	"GBS": "British",
	"GEO": "Georgian",
	"GGY": "Guernsey",
	"GHA": "Ghanaian",
	"GIB": "Gibraltar",
	"GIN": "Guinean",
	"GMB": "Gambian",
	"GNB": "Guinea-Bissauan",
	"GNQ": "Equatorial Guinean",
	"GRC": "Greek",
	"GRD": "Grenadian",
	"GRL": "Greenlandic",
	"GTM": "Guatemalan",
	"GUM": "Guamanian",
	"GUY": "Guyanese",
	"HKG": "Hong Kong",
	"HND": "Honduran",
	"HRV": "Croatian",
	"HTI": "Haitian",
	"HUN": "Hungarian",
	"IDN": "Indonesian",
	"IMN": "Manx",
	"IND": "Indian",
	"IRL": "Irish",
	"IRN": "Iranian",
	"IRQ": "Iraqi",
	"ISL": "Icelandic",
	"ISR": "Israeli",
	"ITA": "Italian",
	"JAM": "Jamaican",
	"JEY": "Jersey",
	"JOR": "Jordanian",
	"JPN": "Japanese",
	"KAZ": "Kazakhstani",
	"KEN": "Kenyan",
	"KGZ": "Kyrgyz",
	"KHM": "Cambodian",
	"KIR": "I-Kiribati",
	"KNA": "Kittitian or Nevisian",
	"KOR": "South Korean",
	"KWT": "Kuwaiti",
	"LAO": "Laotian",
	"LBN": "Lebanese",
	"LBR": "Liberian",
	"LBY": "Libyan",
	"LCA": "Saint Lucian",
	"LIE": "Liechtensteiner",
	"LKA": "Sri Lankan",
	"LSO": "Basotho",
	"LTU": "Lithuanian",
	"LUX": "Luxembourger",
	"LVA": "Latvian",
	"MAC": "Macanese",
	"MAR": "Moroccan",
	"MCO": "Monacan",
	"MDA": "Moldovan",
	"MDG": "Malagasy",
	"MDV": "Maldivian",
	"MEX": "Mexican",
	"MHL": "Marshallese",
	"MKD": "Macedonian",
	"MLI": "Malian",
	"MLT": "Maltese",
	"MMR": "Burmese",
	"MNE": "Montenegrin",
	"MNG": "Mongolian",
	"MOZ": "Mozambican",
	"MRT": "Mauritanian",
	"MSR": "Montserratian",
	"MUS": "Mauritian",
	"MWI": "Malawian",
	"MYS": "Malaysian",
	"NAM": "Namibian",
	"NCL": "New Caledonian",
	"NER": "Nigerien",
	"NGA": "Nigerian",
	"NIC": "Nicaraguan",
	"NIU": "Niuean",
	"NLD": "Dutch",
	"NOR": "Norwegian",
	"NPL": "Nepalese",
	"NRU": "Nauruan",
	"NZL": "New Zealander",
	"OMN": "Omani",
	"PAK": "Pakistani",
	"PAN": "Panamanian",
	"PCN": "Pitcairn Islander",
	"PER": "Peruvian",
	"PHL": "Filipino",
	"PLW": "Palauan",
	"PNG": "Papua New Guinean",
	"POL": "Polish",
	"PRI": "Puerto Rican",
	"PRK": "North Korean",
	"PRT": "Portuguese",
	"PRY": "Paraguayan",
	"PSE": "Palestinian",
	"QAT": "Qatari",
	"REU": "Réunionese",
	"ROU": "Romanian",
	"RUS": "Russian",
	"RWA": "Rwandan",
	"SAU": "Saudi",
	"SDN": "Sudanese",
	"SEN": "Senegalese",
	"SGP": "Singaporean",
	"SHN": "Saint Helenian",
	"SLB": "Solomon Islander",
	"SLE": "Sierra Leonean",
	"SLV": "Salvadoran",
	"SMR": "San Marinese",
	"SOM": "Somali",
	"SPM": "Saint-Pierrais",
	"SRB": "Serbian",
	"SSD": "South Sudanese",
	"STP": "São Toméan",
	"SUR": "Surinamese",
	"SVK": "Slovak",
	"SVN": "Slovenian",
	"SWE": "Swedish",
	"SWZ": "Swazi",
	"SYC": "Seychellois",
	"SYR": "Syrian",
	"TCA": "Turks and Caicos Islander",
	"TCD": "Chadian",
	"TGO": "Togolese",
	"THA": "Thai",
	"TJK": "Tajik",
	"TKL": "Tokelauan",
	"TKM": "Turkmen",
	"TLS": "East Timorese",
	"TON": "Tongan",
	"TTO": "Trinidadian",
	"TUN": "Tunisian",
	"TUR": "Turkish",
	"TUV": "Tuvaluan",
	"TWN": "Taiwanese",
	"TZA": "Tanzanian",
	"UGA": "Ugandan",
	"UKR": "Ukrainian",
	"UNO": "UN Official",
	"URY": "Uruguayan",
	"USA": "American",
	"UZB": "Uzbekistani",
	"VAT": "Vatican",
	"VCT": "Vincentian",
	"VEN": "Venezuelan",
	"VGB": "British Virgin Islander",
	"VIR": "U.S. Virgin Islander",
	"VNM": "Vietnamese",
	"VUT": "Vanuatuan",
	"WLF": "Wallisian",
	"WSM": "Samoan",
	"XXA": "Stateless",
	"XXB": "Refugee",
	"XXC": "Refugee",
	"XXX": "Unspecified",
	"YEM": "Yemeni",
	"ZAF": "South African",
	"ZMB": "Zambian",
	"ZWE": "Zimbabwean",
}

// NationalityName converts an alpha-3 code to its nationality name. Free text is
// title-cased and returned as-is.
func NationalityName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if name, ok := nationalities[strings.ToUpper(s)]; ok {
		return name
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}
