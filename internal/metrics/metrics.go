package metrics

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/apsdehal/go-logger"

	"github.com/hotspotid/voucherflow/internal/aws"
)

const namespace = "VoucherFlow"

// Recorder counts reconciliation outcomes in CloudWatch. Emission is
// best-effort: a metrics failure never fails a reconciliation.
type Recorder struct {
	client aws.CloudWatchAPI
	log    *logger.Logger
}

// NewRecorder returns a CloudWatch-backed Recorder.
func NewRecorder(client aws.CloudWatchAPI, log *logger.Logger) *Recorder {
	return &Recorder{client: client, log: log}
}

// RecordOutcome increments the counter for one reconcile outcome
// (success, failed, expired, conflict, provisioning_failed).
func (r *Recorder) RecordOutcome(ctx context.Context, outcome string) {
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String("ReconcileOutcome"),
				Value:      sdkaws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String("Outcome"), Value: sdkaws.String(outcome)},
				},
			},
		},
	})
	if err != nil {
		r.log.WarningF("put metric data: %v", err)
	}
}
