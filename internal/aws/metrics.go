package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricCount is a single count datapoint with its dimensions.
type MetricCount struct {
	Name       string
	Value      float64
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsPublisher writes count metrics to a CloudWatch namespace.
type MetricsPublisher struct {
	CloudWatch CloudWatchAPI
	Namespace  string
}

// NewMetricsPublisher returns a publisher bound to namespace.
func NewMetricsPublisher(client CloudWatchAPI, namespace string) *MetricsPublisher {
	return &MetricsPublisher{
		CloudWatch: client,
		Namespace:  namespace,
	}
}

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

// PutCounts publishes counts in as few PutMetricData calls as the API allows.
func (m *MetricsPublisher) PutCounts(ctx context.Context, counts []MetricCount) error {
	for start := 0; start < len(counts); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(counts) {
			end = len(counts)
		}

		data := make([]cwtypes.MetricDatum, 0, end-start)
		for _, c := range counts[start:end] {
			data = append(data, toDatum(c))
		}

		_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  &m.Namespace,
			MetricData: data,
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func toDatum(c MetricCount) cwtypes.MetricDatum {
	keys := make([]string, 0, len(c.Dimensions))
	for k := range c.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dims := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dims = append(dims, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(c.Dimensions[k]),
		})
	}

	value := c.Value
	datum := cwtypes.MetricDatum{
		MetricName: awsString(c.Name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      &value,
		Dimensions: dims,
	}
	if !c.Timestamp.IsZero() {
		ts := c.Timestamp
		datum.Timestamp = &ts
	}
	return datum
}
