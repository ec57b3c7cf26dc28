// Package ses delivers campaign email through Amazon SES v2.
package ses

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
)

// API is the subset of the SES client the provider uses.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider sends one email per Deliver call.
type Provider struct {
	client           API
	from             string
	configurationSet string
}

// New loads AWS configuration and creates a provider. Static credentials
// are used when both keys are set, otherwise the default chain applies.
func New(ctx context.Context, cfg config.SESConfig) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg.FromAddress, cfg.ConfigurationSet), nil
}

// NewWithClient creates a provider on an existing client.
func NewWithClient(client API, from, configurationSet string) *Provider {
	return &Provider{client: client, from: from, configurationSet: configurationSet}
}

// Deliver implements dispatch.Provider.
func (p *Provider) Deliver(ctx context.Context, out dispatch.Outbound) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.from),
		Destination:      &types.Destination{ToAddresses: []string{out.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(out.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(out.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: tags(map[string]string{
			"contact_id": out.ContactID,
			"project_id": out.ProjectID,
		}),
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	result, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	messageID := aws.ToString(result.MessageId)
	logger.Debug("ses accepted message", "email", out.To, "message_id", messageID)
	return messageID, nil
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-.@]`)

// tags builds SES message tags, skipping empty values. SES only accepts a
// restricted character set in tag values.
func tags(kv map[string]string) []types.MessageTag {
	var out []types.MessageTag
	for _, k := range []string{"contact_id", "project_id"} {
		v := kv[k]
		if v == "" {
			continue
		}
		out = append(out, types.MessageTag{Name: aws.String(k), Value: aws.String(tagUnsafe.ReplaceAllString(v, "_"))})
	}
	return out
}
