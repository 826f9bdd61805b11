package jobs

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/greenpass/greenpass/internal/batch"
	"github.com/greenpass/greenpass/internal/quotation"
	"github.com/greenpass/greenpass/internal/voucher"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBatchGenerated fans out a committed voucher batch.
	TaskBatchGenerated = "voucher:batch_generated"
	// TaskVoucherRedeemed fans out a redemption.
	TaskVoucherRedeemed = "voucher:redeemed"
	// TaskQuotationConverted fans out a quotation to invoice conversion.
	TaskQuotationConverted = "quotation:converted"
)

const maxRetry = 10

// TaskID derives a stable task id so a re-published event is rejected by
// the queue as a duplicate.
func TaskID(taskType, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("greenpass/"+taskType+"/"+key)).String()
}

func newTask(taskType, key string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data,
		asynq.TaskID(TaskID(taskType, key)),
		asynq.MaxRetry(maxRetry),
		asynq.Queue(QueueDefault),
	), nil
}

// NewBatchGeneratedTask constructs the batch fan-out task.
func NewBatchGeneratedTask(evt batch.GeneratedEvent) (*asynq.Task, error) {
	return newTask(TaskBatchGenerated, strconv.FormatInt(evt.BatchID, 10), evt)
}

// NewVoucherRedeemedTask constructs the redemption fan-out task.
func NewVoucherRedeemedTask(evt voucher.RedeemedEvent) (*asynq.Task, error) {
	return newTask(TaskVoucherRedeemed, evt.Code, evt)
}

// NewQuotationConvertedTask constructs the conversion fan-out task.
func NewQuotationConvertedTask(evt quotation.ConvertedEvent) (*asynq.Task, error) {
	return newTask(TaskQuotationConverted, strconv.FormatInt(evt.QuotationID, 10), evt)
}
