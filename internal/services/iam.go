package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/errors"
	"github.com/savaki/static-site-cn/internal/staticsite"
)

// CloudFront only accepts IAM server certificates uploaded under this path.
const CloudFrontCertificatePath = "/cloudfront/"

type IAMAPI interface {
	ListServerCertificates(ctx context.Context, params *iam.ListServerCertificatesInput, optFns ...func(*iam.Options)) (*iam.ListServerCertificatesOutput, error)
}

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type IAMService struct {
	client    IAMAPI
	stsClient STSAPI
}

func NewIAMService(client IAMAPI, stsClient STSAPI) *IAMService {
	return &IAMService{
		client:    client,
		stsClient: stsClient,
	}
}

// GetAWSAccountID retrieves the AWS account ID
func (s *IAMService) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

// ServerCertificateID looks up the id of the IAM server certificate called name.
func (s *IAMService) ServerCertificateID(ctx context.Context, name string) (string, error) {
	logger := zerolog.Ctx(ctx)

	paginator := iam.NewListServerCertificatesPaginator(s.client, &iam.ListServerCertificatesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list server certificates: %w", err)
		}

		for _, cert := range page.ServerCertificateMetadataList {
			if aws.ToString(cert.ServerCertificateName) != name {
				continue
			}
			if path := aws.ToString(cert.Path); !strings.HasPrefix(path, CloudFrontCertificatePath) {
				logger.Warn().
					Str("certificate", name).
					Str("path", path).
					Msg("Server certificate is not under /cloudfront/ and may be rejected by CloudFront")
			}
			if cert.Expiration != nil {
				logger.Info().
					Str("certificate", name).
					Time("expiration", *cert.Expiration).
					Msg("Found server certificate")
			}
			return aws.ToString(cert.ServerCertificateId), nil
		}
	}

	return "", fmt.Errorf("%w: %s", errors.ErrCertificateNotFound, name)
}

// ResolveCertificate fills in the certificate id from its name when only the
// name is configured.
func (s *IAMService) ResolveCertificate(ctx context.Context, domain *staticsite.DomainProps) error {
	if domain.IamCertificateID != "" {
		return nil
	}
	if domain.IamCertificateName == "" {
		return errors.ErrCertificateRequired
	}

	id, err := s.ServerCertificateID(ctx, domain.IamCertificateName)
	if err != nil {
		return err
	}
	domain.IamCertificateID = id
	return nil
}
