// Package registration implements the per-BSN referral registration
// pipeline (spec §4.7): derive a pseudonym, check the NVI for an
// existing referral, and submit a new one if none exists.
package registration

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

const recipientScope = "nationale-verwijsindex"

// Blinder performs the local OPRF blind step, implemented by
// *pseudonymize.Blinder.
type Blinder interface {
	Blind(id domain.PersonalIdentifier, recipientOrganization, recipientScope string) (blindFactor, blindedInput string, err error)
}

// PseudonymSubmitter exchanges a blinded input for an OPRF pseudonym
// JWE, implemented by *pseudonymize.Client.
type PseudonymSubmitter interface {
	Submit(ctx context.Context, blindedInput, recipientOrganization, recipientScope string) (domain.OprfPseudonymJWE, error)
}

// NviClient is the subset of *nviclient.Client the registration
// pipeline needs.
type NviClient interface {
	IsReferralRegistered(ctx context.Context, query domain.ReferralQuery) (bool, error)
	Submit(ctx context.Context, req domain.CreateReferralRequest) (domain.ReferralEntity, error)
}

// Service drives the registration pipeline for one deployment's own
// URA number and default organization type.
type Service struct {
	blinder        Blinder
	pseudonyms     PseudonymSubmitter
	nvi            NviClient
	logger         zerolog.Logger
	uraNumber      domain.UraNumber
	defaultOrgType string
}

func New(blinder Blinder, pseudonyms PseudonymSubmitter, nvi NviClient, logger zerolog.Logger, uraNumber domain.UraNumber, defaultOrgType string) *Service {
	return &Service{
		blinder:        blinder,
		pseudonyms:     pseudonyms,
		nvi:            nvi,
		logger:         logger,
		uraNumber:      uraNumber,
		defaultOrgType: defaultOrgType,
	}
}

// Register drives the full pipeline for one BSN within one data
// domain. It returns (entity, true) when a new referral was created,
// and (zero-value, false) when the NVI already had one (spec §4.7
// step 6 — idempotent no-op, not an error).
func (s *Service) Register(ctx context.Context, bsn domain.BSN, dataDomain domain.DataDomain) (domain.ReferralEntity, bool, error) {
	recipientOrganization := "ura:" + s.uraNumber.String()
	personalID := domain.NewBSNPersonalIdentifier(bsn)

	blindFactor, blindedInput, err := s.blinder.Blind(personalID, recipientOrganization, recipientScope)
	if err != nil {
		return domain.ReferralEntity{}, false, referrors.Wrap(referrors.KindPseudonym, "blinding personal identifier", err)
	}

	jwe, err := s.pseudonyms.Submit(ctx, blindedInput, recipientOrganization, recipientScope)
	if err != nil {
		return domain.ReferralEntity{}, false, err
	}

	query, err := domain.NewReferralQuery(&jwe, &blindFactor, dataDomain, s.uraNumber, "")
	if err != nil {
		return domain.ReferralEntity{}, false, referrors.Wrap(referrors.KindInvalidResource, "building referral query", err)
	}

	registered, err := s.nvi.IsReferralRegistered(ctx, query)
	if err != nil {
		return domain.ReferralEntity{}, false, err
	}
	if registered {
		s.logger.Info().Str("data_domain", dataDomain.String()).Msg("referral already registered")
		return domain.ReferralEntity{}, false, nil
	}

	req := domain.CreateReferralRequest{
		OprfJWE:          jwe,
		BlindFactor:      blindFactor,
		DataDomain:       dataDomain,
		UraNumber:        s.uraNumber,
		OrganizationType: s.defaultOrgType,
	}
	entity, err := s.nvi.Submit(ctx, req)
	if err != nil {
		return domain.ReferralEntity{}, false, err
	}

	s.logger.Info().Fields(entity.LogFields()).Msg("registered new referral")
	return entity, true, nil
}
