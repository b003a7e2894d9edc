package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient is a small helper around the official InfluxDB v2 client
// used by the E2E tests. It onboards a fresh server and counts the points
// written by the service.
type InfluxClient struct {
	url    string
	org    string
	bucket string
	token  string
	client influxdb2.Client
	query  api.QueryAPI
}

// SetupInflux onboards a fresh InfluxDB instance with the given organisation
// and bucket and returns a client authenticated with the operator token.
func SetupInflux(ctx context.Context, url, org, bucket string) (*InfluxClient, error) {
	boot := influxdb2.NewClient(url, "")
	defer boot.Close()
	resp, err := boot.Setup(ctx, "e2e", "e2e-password", org, bucket, 0)
	if err != nil {
		return nil, fmt.Errorf("onboarding: %w", err)
	}
	if resp.Auth == nil || resp.Auth.Token == nil {
		return nil, fmt.Errorf("onboarding returned no token")
	}
	token := *resp.Auth.Token
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{
		url:    url,
		org:    org,
		bucket: bucket,
		token:  token,
		client: c,
		query:  c.QueryAPI(org),
	}, nil
}

// Token returns the operator token obtained during onboarding.
func (c *InfluxClient) Token() string { return c.token }

// CountPoints returns how many field values of measurement were written in the last hour.
func (c *InfluxClient) CountPoints(ctx context.Context, measurement, field string) (int, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-1h) |> filter(fn: (r) => r._measurement == %q and r._field == %q)`,
		c.bucket, measurement, field)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	count := 0
	for res.Next() {
		count++
	}
	return count, res.Err()
}

// Close releases the underlying client resources.
func (c *InfluxClient) Close() { c.client.Close() }
