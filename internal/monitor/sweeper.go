package monitor

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	fleet "vendwatch/internal/fleet/domain"
)

// PartnerReader lists partners.
type PartnerReader interface {
	List(ctx context.Context) ([]fleet.Partner, error)
}

// MerchantReader lists merchants per partner.
type MerchantReader interface {
	ListByPartner(ctx context.Context, partnerID int64) ([]fleet.Merchant, error)
}

// MachineReader lists machines per merchant set.
type MachineReader interface {
	ListActiveByMerchants(ctx context.Context, merchantIDs []int64) ([]fleet.Machine, error)
	ListOfflineByMerchants(ctx context.Context, merchantIDs []int64) ([]fleet.Machine, error)
}

// PartnerGroup is the per-partner slice of a fleet snapshot.
type PartnerGroup struct {
	Partner     fleet.Partner
	MerchantIDs map[int64]struct{}
	Machines    []fleet.Machine
}

// Snapshot is an immutable view of the fleet built once at the start of an
// evaluation pass. Detectors never reach back into the reference data
// mid-pass.
type Snapshot struct {
	Groups []PartnerGroup
}

// Sweeper enumerates partners, merchants, and machines for evaluation
// passes, isolating per-partner and per-machine failures.
type Sweeper struct {
	partners  PartnerReader
	merchants MerchantReader
	machines  MachineReader
	log       zerolog.Logger
}

// NewSweeper constructs a sweeper.
func NewSweeper(partners PartnerReader, merchants MerchantReader, machines MachineReader, log zerolog.Logger) (*Sweeper, error) {
	if partners == nil {
		return nil, errors.New("sweeper: nil partner reader")
	}
	if merchants == nil {
		return nil, errors.New("sweeper: nil merchant reader")
	}
	if machines == nil {
		return nil, errors.New("sweeper: nil machine reader")
	}
	return &Sweeper{partners: partners, merchants: merchants, machines: machines, log: log}, nil
}

// SnapshotActive builds a snapshot of online machines grouped by partner.
func (s *Sweeper) SnapshotActive(ctx context.Context) (*Snapshot, error) {
	return s.snapshot(ctx, false)
}

// SnapshotOffline builds a snapshot of offline machines grouped by partner.
func (s *Sweeper) SnapshotOffline(ctx context.Context) (*Snapshot, error) {
	return s.snapshot(ctx, true)
}

func (s *Sweeper) snapshot(ctx context.Context, offline bool) (*Snapshot, error) {
	if s == nil {
		return nil, errors.New("sweeper: nil")
	}
	partners, err := s.partners.List(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{}
	for _, partner := range partners {
		merchants, err := s.merchants.ListByPartner(ctx, partner.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("partner_id", partner.ID).Str("partner", partner.Name).Msg("merchant lookup failed, skipping partner")
			continue
		}
		if len(merchants) == 0 {
			continue
		}
		merchantIDs := make([]int64, 0, len(merchants))
		merchantSet := make(map[int64]struct{}, len(merchants))
		for _, m := range merchants {
			merchantIDs = append(merchantIDs, m.ID)
			merchantSet[m.ID] = struct{}{}
		}
		var machines []fleet.Machine
		if offline {
			machines, err = s.machines.ListOfflineByMerchants(ctx, merchantIDs)
		} else {
			machines, err = s.machines.ListActiveByMerchants(ctx, merchantIDs)
		}
		if err != nil {
			s.log.Error().Err(err).Int64("partner_id", partner.ID).Str("partner", partner.Name).Msg("machine lookup failed, skipping partner")
			continue
		}
		if len(machines) == 0 {
			continue
		}
		snap.Groups = append(snap.Groups, PartnerGroup{
			Partner:     partner,
			MerchantIDs: merchantSet,
			Machines:    machines,
		})
	}
	return snap, nil
}

// Sweep invokes fn for every machine in the snapshot. A per-machine error is
// logged with its context and never aborts the remaining iteration.
func (s *Sweeper) Sweep(ctx context.Context, detector string, snap *Snapshot, fn func(ctx context.Context, partner fleet.Partner, machine fleet.Machine) error) {
	if s == nil || snap == nil || fn == nil {
		return
	}
	for _, group := range snap.Groups {
		for _, machine := range group.Machines {
			if err := fn(ctx, group.Partner, machine); err != nil {
				s.log.Error().
					Err(err).
					Str("detector", detector).
					Str("partner", group.Partner.Name).
					Str("serial", machine.SerialNo).
					Msg("machine evaluation failed")
			}
		}
	}
}
