// Package awscost implements the cost provider port for AWS using the Cost
// Explorer API via the official SDK.
package awscost

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/port/costprovider"
)

const providerName = "aws"

const defaultRegion = "us-east-1"

// costExplorerAPI is the slice of the Cost Explorer client this adapter uses,
// extracted so tests can substitute a fake.
type costExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// Provider implements costprovider.Provider for AWS.
type Provider struct {
	client costExplorerAPI
}

// NewProvider creates an AWS provider from a decrypted credential map with
// access_key_id, secret_access_key and an optional region.
func NewProvider(ctx context.Context, creds map[string]string) (*Provider, error) {
	accessKey := creds["access_key_id"]
	secretKey := creds["secret_access_key"]
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: aws requires access_key_id and secret_access_key", domain.ErrInvalidCredentials)
	}

	region := creds["region"]
	if region == "" {
		region = defaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return &Provider{client: costexplorer.NewFromConfig(cfg)}, nil
}

func (p *Provider) Name() string { return providerName }

// ValidateCredentials issues a minimal one-day query to verify the keys are
// accepted. A rejection from the API means the credentials are bad; transport
// failures are returned as errors so callers can distinguish.
func (p *Provider) ValidateCredentials(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(now.AddDate(0, 0, -1).Format("2006-01-02")),
			End:   aws.String(now.Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
	}

	if _, err := p.client.GetCostAndUsage(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "UnrecognizedClientException", "InvalidClientTokenId", "AccessDeniedException", "AccessDenied":
				return false, nil
			}
		}
		return false, err
	}
	return true, nil
}

// GetCosts fetches daily unblended costs grouped by service and usage type.
// Cost Explorer cannot group by resource in this API, so records carry no
// resource ID.
func (p *Provider) GetCosts(ctx context.Context, r costitem.DateRange) ([]costprovider.RawCostRecord, error) {
	// The Cost Explorer end date is exclusive.
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(r.Start.Format("2006-01-02")),
			End:   aws.String(r.End.AddDate(0, 0, 1).Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{Type: types.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
			{Type: types.GroupDefinitionTypeDimension, Key: aws.String("USAGE_TYPE")},
		},
	}

	var records []costprovider.RawCostRecord
	for {
		out, err := p.client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("%w: aws get cost and usage: %v", domain.ErrProviderUnavailable, err)
		}

		for _, period := range out.ResultsByTime {
			if period.TimePeriod == nil || period.TimePeriod.Start == nil {
				continue
			}
			date, err := time.Parse("2006-01-02", *period.TimePeriod.Start)
			if err != nil {
				continue
			}

			for _, group := range period.Groups {
				if len(group.Keys) < 2 {
					continue
				}
				metric, ok := group.Metrics["UnblendedCost"]
				if !ok || metric.Amount == nil {
					continue
				}
				amount, err := strconv.ParseFloat(*metric.Amount, 64)
				if err != nil || amount == 0 {
					// Cost Explorer reports a zero row for every service the
					// account ever touched; they carry no signal.
					continue
				}

				currency := "USD"
				if metric.Unit != nil && *metric.Unit != "" {
					currency = *metric.Unit
				}

				records = append(records, costprovider.RawCostRecord{
					Date:      date,
					Service:   group.Keys[0],
					UsageType: group.Keys[1],
					Amount:    amount,
					Currency:  currency,
				})
			}
		}

		if out.NextPageToken == nil {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	return records, nil
}
