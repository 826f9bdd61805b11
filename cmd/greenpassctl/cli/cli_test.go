package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpass/greenpass/internal/app"
	"github.com/greenpass/greenpass/internal/voucher"
	"github.com/greenpass/greenpass/jobs"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testConfig() (*app.Config, error) {
	return &app.Config{
		Currency:          "PGK",
		DefaultVoucherFee: "50.00",
		GSTRate:           "10",
		VoucherValidity:   365,
		InvoiceDueDays:    30,
	}, nil
}

func TestCodeGenerateAndCheck(t *testing.T) {
	out, err := execute(t, newCodeCommand(), "generate", "--count", "3")
	require.NoError(t, err)
	codes := strings.Fields(out)
	require.Len(t, codes, 3)
	for _, c := range codes {
		assert.True(t, voucher.ValidFormat(c), c)
	}

	out, err = execute(t, newCodeCommand(), "check", strings.ToLower(codes[0]))
	require.NoError(t, err)
	assert.Contains(t, out, codes[0]+"\tok")

	out, err = execute(t, newCodeCommand(), "check", "ABCD2345", "OOPS0001")
	require.Error(t, err)
	assert.Contains(t, out, "OOPS0001\tinvalid")

	_, err = execute(t, newCodeCommand(), "generate", "--count", "0")
	require.Error(t, err)
}

func TestQuoteAppliesDiscountThenGST(t *testing.T) {
	out, err := execute(t, newQuoteCommand(testConfig), "--count", "10", "--discount", "10", "--gst", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "PGK 500.00")
	assert.Contains(t, out, "PGK 50.00")
	assert.Contains(t, out, "PGK 45.00")
	assert.Regexp(t, `Total\s+PGK 495.00`, out)

	out, err = execute(t, newQuoteCommand(testConfig), "--count", "1")
	require.NoError(t, err)
	assert.Regexp(t, `Total\s+PGK 50.00`, out)

	_, err = execute(t, newQuoteCommand(testConfig), "--count", "1001")
	require.Error(t, err)
}

func TestReconcileClassifiesVariance(t *testing.T) {
	out, err := execute(t, newReconcileCommand(), "--float", "100", "--expected", "600", "--count", "50x13", "--count", "0.50x0")
	require.NoError(t, err)
	assert.Contains(t, out, "650.00")
	assert.Contains(t, out, "-50.00 (shortage)")

	_, err = execute(t, newReconcileCommand(), "--count", "fifty")
	require.Error(t, err)
}

type fakeInspector struct {
	info    *asynq.QueueInfo
	retry   []*asynq.TaskInfo
	ran     int
	queues  []string
	failing bool
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	f.queues = append(f.queues, queue)
	if f.failing {
		return nil, errors.New("redis down")
	}
	return f.info, nil
}

func (f *fakeInspector) ListRetryTasks(queue string, _ ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	f.queues = append(f.queues, queue)
	return f.retry, nil
}

func (f *fakeInspector) RunAllRetryTasks(queue string) (int, error) {
	f.queues = append(f.queues, queue)
	f.ran = len(f.retry)
	return f.ran, nil
}

func (f *fakeInspector) Close() error { return nil }

func TestJobsCLIUsesDefaultQueue(t *testing.T) {
	ctx := context.Background()
	insp := &fakeInspector{
		info:  &asynq.QueueInfo{Pending: 3, Retry: 1, Archived: 2},
		retry: []*asynq.TaskInfo{{ID: "t1", Type: jobs.TaskVoucherRedeemed}},
	}
	jc := NewJobsCLI(insp)

	stats, err := jc.InspectQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1, Archived: 2}, stats)

	tasks, err := jc.ListRetry(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	n, err := jc.RetryNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{jobs.QueueDefault, jobs.QueueDefault, jobs.QueueDefault}, insp.queues)
	require.NoError(t, jc.Close())

	insp.failing = true
	_, err = jc.InspectQueue(ctx)
	require.Error(t, err)

	_, err = (*JobsCLI)(nil).InspectQueue(ctx)
	require.Error(t, err)
}

func TestRootCommandListsSubcommands(t *testing.T) {
	out, err := execute(t, NewRootCommand(new(bytes.Buffer)), "--help")
	require.NoError(t, err)
	for _, name := range []string{"code", "quote", "reconcile", "jobs"} {
		assert.Contains(t, out, name)
	}
}
