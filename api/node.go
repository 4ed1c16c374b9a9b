// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/luxfi/ids"

	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/network"
	"github.com/luxfi/los/node"
	"github.com/luxfi/los/reward"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/txs/fee"
	"github.com/luxfi/los/txs/mempool"
	"github.com/luxfi/los/utils/units"
	"github.com/luxfi/los/validators"

	ljson "github.com/luxfi/los/utils/json"
)

const (
	healthHealthy  = "healthy"
	healthDegraded = "degraded"
	healthHalted   = "halted"

	distributionModel = "sqrt_stake"
	consensusProtocol = "pbft"
)

type chainJSON struct {
	ID          ids.ID `json:"id"`
	Network     string `json:"network"`
	Accounts    int    `json:"accounts"`
	Blocks      uint64 `json:"blocks"`
	LastDecided uint64 `json:"last_decided"`
}

type databaseJSON struct {
	AccountsCount int    `json:"accounts_count"`
	BlocksCount   uint64 `json:"blocks_count"`
	SizeOnDisk    uint64 `json:"size_on_disk"`
}

type healthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds uint64       `json:"uptime_seconds"`
	Chain         chainJSON    `json:"chain"`
	Database      databaseJSON `json:"database"`
	Consensus     bft.Safety   `json:"consensus"`
	Timestamp     int64        `json:"timestamp"`
}

// health reports 503 once the write path halted. A node without a quorum of
// active validators still serves reads and reports itself degraded.
func (s *service) health(w http.ResponseWriter, _ *http.Request) {
	n := s.node
	stats := n.Ledger().Stats()
	safety := n.Consensus().Safety()
	resp := healthResponse{
		Status:        healthHealthy,
		Version:       node.Version,
		UptimeSeconds: uint64(n.Uptime().Seconds()),
		Chain: chainJSON{
			ID:          n.Genesis().ID(),
			Network:     n.Config().NetworkName,
			Accounts:    stats.Accounts,
			Blocks:      stats.Blocks,
			LastDecided: n.Consensus().LastDecided(),
		},
		Database: databaseJSON{
			AccountsCount: stats.Accounts,
			BlocksCount:   stats.Blocks,
			SizeOnDisk:    n.DiskSize(),
		},
		Consensus: safety,
		Timestamp: n.Clock().Time().Unix(),
	}
	code := http.StatusOK
	switch {
	case n.Ledger().Halted() || n.Consensus().Halted():
		resp.Status = healthHalted
		code = http.StatusServiceUnavailable
	case !n.Consensus().Available():
		resp.Status = healthDegraded
	}
	writeJSON(w, code, resp)
}

type protocolJSON struct {
	CILPerLOS         uint64 `json:"cil_per_los"`
	BaseFeeCIL        uint64 `json:"base_fee_cil"`
	TotalSupplyCIL    uint64 `json:"total_supply_cil"`
	MinStakeCIL       uint64 `json:"min_validator_stake_cil"`
	AddressPrefix     string `json:"address_prefix"`
	Decimals          int    `json:"decimals"`
	MaxTimestampDrift int64  `json:"max_timestamp_drift_secs"`
}

type nodeInfoResponse struct {
	result
	Address     keys.Address `json:"address"`
	Short       string       `json:"short"`
	Version     string       `json:"version"`
	Network     string       `json:"network"`
	Testnet     bool         `json:"testnet"`
	GenesisID   ids.ID       `json:"genesis_id"`
	Protocol    protocolJSON `json:"protocol"`
	Validators  int          `json:"validators"`
	Peers       int          `json:"peers"`
	LastDecided uint64       `json:"last_decided"`
}

func (s *service) nodeInfo(w http.ResponseWriter, _ *http.Request) {
	n := s.node
	c := n.Config()
	s.ok(w, nodeInfoResponse{
		result:    success,
		Address:   n.Address(),
		Short:     n.Address().Short(),
		Version:   node.Version,
		Network:   c.NetworkName,
		Testnet:   c.Testnet,
		GenesisID: n.Genesis().ID(),
		Protocol: protocolJSON{
			CILPerLOS:         units.LOS,
			BaseFeeCIL:        c.Fee.BaseFee,
			TotalSupplyCIL:    n.Ledger().Supply().Total,
			MinStakeCIL:       c.Reward.MinStake,
			AddressPrefix:     keys.AddressPrefix,
			Decimals:          units.Decimals,
			MaxTimestampDrift: txs.MaxTimestampDrift,
		},
		Validators:  len(n.Validators().Members()),
		Peers:       len(n.Network().Peers()),
		LastDecided: n.Consensus().LastDecided(),
	})
}

type whoamiResponse struct {
	result
	Address keys.Address `json:"address"`
	Short   string       `json:"short"`
}

func (s *service) whoami(w http.ResponseWriter, _ *http.Request) {
	addr := s.node.Address()
	s.ok(w, whoamiResponse{
		result:  success,
		Address: addr,
		Short:   addr.Short(),
	})
}

type validatorJSON struct {
	validators.Info
	StakeLOS ljson.LOS `json:"stake"`
}

type validatorsResponse struct {
	result
	Validators  []validatorJSON `json:"validators"`
	Count       int             `json:"count"`
	ActiveCount int             `json:"active_count"`
}

func (s *service) validatorViews() []validatorJSON {
	infos := s.node.Validators().List()
	out := make([]validatorJSON, len(infos))
	for i, info := range infos {
		out[i] = validatorJSON{
			Info:     info,
			StakeLOS: ljson.LOS(info.Stake),
		}
	}
	return out
}

func (s *service) validators(w http.ResponseWriter, _ *http.Request) {
	views := s.validatorViews()
	active := 0
	for _, v := range views {
		if v.IsActive {
			active++
		}
	}
	s.ok(w, validatorsResponse{
		result:      success,
		Validators:  views,
		Count:       len(views),
		ActiveCount: active,
	})
}

type confirmationJSON struct {
	QuorumThreshold int    `json:"quorum_threshold"`
	Votes           string `json:"votes"`
	Available       bool   `json:"available"`
}

type finalityJSON struct {
	Type           string `json:"type"`
	LastDecided    uint64 `json:"last_decided"`
	LastDecisionAt int64  `json:"last_decision_at"`
}

type consensusResponse struct {
	result
	Protocol     string           `json:"protocol"`
	Safety       bft.Safety       `json:"safety"`
	Confirmation confirmationJSON `json:"confirmation"`
	Finality     finalityJSON     `json:"finality"`
	State        bft.Status       `json:"state"`
}

func (s *service) consensus(w http.ResponseWriter, _ *http.Request) {
	e := s.node.Consensus()
	safety := e.Safety()
	status := e.Status()
	s.ok(w, consensusResponse{
		result:   success,
		Protocol: consensusProtocol,
		Safety:   safety,
		Confirmation: confirmationJSON{
			QuorumThreshold: safety.QuorumThreshold,
			Votes:           strconv.Itoa(safety.QuorumThreshold) + "/" + strconv.Itoa(safety.TotalValidators),
			Available:       e.Available(),
		},
		Finality: finalityJSON{
			Type:           "deterministic",
			LastDecided:    status.LastDecided,
			LastDecisionAt: status.LastDecisionAt,
		},
		State: status,
	})
}

type rewardConfigJSON struct {
	ProbationEpochs       uint64 `json:"probation_epochs"`
	MinUptimePct          uint64 `json:"min_uptime_pct"`
	HalvingIntervalEpochs uint64 `json:"halving_interval_epochs"`
	GenesisExcluded       bool   `json:"genesis_excluded"`
	DistributionModel     string `json:"distribution_model"`
	InitialRateCIL        uint64 `json:"initial_rate_cil"`
	MinStakeCIL           uint64 `json:"min_stake_cil"`
	EpochDurationSecs     uint64 `json:"epoch_duration_secs"`
}

type rewardEpochJSON struct {
	CurrentEpoch       uint64 `json:"current_epoch"`
	HalvingsOccurred   uint64 `json:"halvings_occurred"`
	EpochRewardRateCIL uint64 `json:"epoch_reward_rate_cil"`
	EpochStart         int64  `json:"epoch_start"`
	EpochDurationSecs  uint64 `json:"epoch_duration_secs"`
	EpochRemainingSecs uint64 `json:"epoch_remaining_secs"`
}

type rewardPoolJSON struct {
	RemainingCIL        uint64    `json:"remaining_cil"`
	TotalDistributedCIL uint64    `json:"total_distributed_cil"`
	RemainingLOS        ljson.LOS `json:"remaining_los"`
	TotalDistributedLOS ljson.LOS `json:"total_distributed_los"`
	PoolSizeCIL         uint64    `json:"pool_size_cil"`
}

type rewardValidatorsJSON struct {
	Total    int             `json:"total"`
	Eligible int             `json:"eligible"`
	Details  []validatorJSON `json:"details"`
}

type rewardInfoResponse struct {
	result
	Config     rewardConfigJSON     `json:"config"`
	Epoch      rewardEpochJSON      `json:"epoch"`
	Pool       rewardPoolJSON       `json:"pool"`
	Validators rewardValidatorsJSON `json:"validators"`
	LastResult *reward.EpochResult  `json:"last_result,omitempty"`
}

func (s *service) rewardInfo(w http.ResponseWriter, _ *http.Request) {
	pool := s.node.Rewards()
	calc := pool.Calculator()
	cfg := calc.Config()
	state := pool.Snapshot()

	duration := uint64(cfg.EpochDuration.Seconds())
	end := state.EpochStart + int64(duration)
	var remaining uint64
	if now := s.node.Clock().Time().Unix(); end > now {
		remaining = uint64(end - now)
	}

	views := s.validatorViews()
	eligible := 0
	for _, v := range views {
		if v.Reward.Eligible {
			eligible++
		}
	}

	s.ok(w, rewardInfoResponse{
		result: success,
		Config: rewardConfigJSON{
			ProbationEpochs:       cfg.ProbationEpochs,
			MinUptimePct:          cfg.MinUptimePct,
			HalvingIntervalEpochs: cfg.HalvingInterval,
			DistributionModel:     distributionModel,
			InitialRateCIL:        cfg.InitialRate,
			MinStakeCIL:           cfg.MinStake,
			EpochDurationSecs:     duration,
		},
		Epoch: rewardEpochJSON{
			CurrentEpoch:       state.Epoch,
			HalvingsOccurred:   calc.Halvings(state.Epoch),
			EpochRewardRateCIL: calc.Rate(state.Epoch),
			EpochStart:         state.EpochStart,
			EpochDurationSecs:  duration,
			EpochRemainingSecs: remaining,
		},
		Pool: rewardPoolJSON{
			RemainingCIL:        state.Remaining,
			TotalDistributedCIL: state.Distributed,
			RemainingLOS:        ljson.LOS(state.Remaining),
			TotalDistributedLOS: ljson.LOS(state.Distributed),
			PoolSizeCIL:         cfg.PoolSize,
		},
		Validators: rewardValidatorsJSON{
			Total:    len(views),
			Eligible: eligible,
			Details:  views,
		},
		LastResult: state.LastResult,
	})
}

type slashingResponse struct {
	result
	SafetyStats slashing.Stats     `json:"safety_stats"`
	Profiles    []slashing.Profile `json:"profiles"`
}

func (s *service) slashing(w http.ResponseWriter, _ *http.Request) {
	e := s.node.Slashing()
	profiles := e.Profiles()
	if profiles == nil {
		profiles = []slashing.Profile{}
	}
	s.ok(w, slashingResponse{
		result:      success,
		SafetyStats: e.Stats(),
		Profiles:    profiles,
	})
}

type slashingProfileResponse struct {
	result
	Profile slashing.Profile `json:"profile"`
}

func (s *service) slashingProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, slashingProfileResponse{
		result:  success,
		Profile: s.node.Slashing().Profile(addr),
	})
}

type feeEstimateResponse struct {
	result
	fee.Estimate
}

func (s *service) feeEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := s.node.Fees().Estimate(mux.Vars(r)["address"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, feeEstimateResponse{
		result:   success,
		Estimate: est,
	})
}

type mempoolResponse struct {
	result
	mempool.Stats
}

func (s *service) mempoolStats(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, mempoolResponse{
		result: success,
		Stats:  s.node.Mempool().Stats(),
	})
}

type peersResponse struct {
	result
	Peers []network.Peer `json:"peers"`
	Count int            `json:"count"`
}

func (s *service) peers(w http.ResponseWriter, _ *http.Request) {
	peers := s.node.Network().Peers()
	if peers == nil {
		peers = []network.Peer{}
	}
	s.ok(w, peersResponse{
		result: success,
		Peers:  peers,
		Count:  len(peers),
	})
}
