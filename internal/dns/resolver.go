// Package dns finds the Route 53 hosted zone a site's alias is created in.
package dns

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/errors"
)

// Route53API is the subset of the Route 53 client the resolver uses.
type Route53API interface {
	ListHostedZonesByName(ctx context.Context, params *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
}

type Resolver struct {
	client Route53API
}

func NewResolver(client Route53API) *Resolver {
	return &Resolver{client: client}
}

// HostedZoneID returns the id of the public hosted zone named zoneName.
func (r *Resolver) HostedZoneID(ctx context.Context, zoneName string) (string, error) {
	logger := zerolog.Ctx(ctx)
	want := Canonical(zoneName)

	out, err := r.client.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName:  aws.String(want),
		MaxItems: aws.Int32(10),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list hosted zones for %s: %w", zoneName, err)
	}

	// zones come back sorted by name starting at DNSName, so the first
	// mismatch ends the candidates
	for _, zone := range out.HostedZones {
		if Canonical(aws.ToString(zone.Name)) != want {
			break
		}
		if zone.Config != nil && zone.Config.PrivateZone {
			continue
		}
		id := strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/")
		logger.Info().Str("zone", want).Str("hosted_zone_id", id).Msg("Found hosted zone")
		return id, nil
	}

	return "", fmt.Errorf("%w: %s", errors.ErrHostedZoneNotFound, zoneName)
}

// Canonical lower-cases name and ensures the trailing dot.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, ".")) + "."
}
