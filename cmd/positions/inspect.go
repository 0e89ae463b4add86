package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type adapterRecord struct {
	Platform string `json:"platform"`
	ChainID  uint64 `json:"chain_id"`
	Error    string `json:"error,omitempty"`
}

func newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "Resolve the enabled platform adapters of a chain",
		Args:  cobra.NoArgs,
		RunE: run(func(a *app, _ []string) error {
			res := a.resolveSelected()
			for _, ad := range res.Adapters {
				if err := a.out.Write(adapterRecord{Platform: ad.Platform(), ChainID: ad.ChainID()}); err != nil {
					return err
				}
			}
			for _, failure := range res.Failures {
				a.logger.Warn("adapter unavailable", zap.String("platform", failure.Platform), zap.Error(failure.Err))
				if err := a.out.Write(adapterRecord{Platform: failure.Platform, ChainID: a.cfg.ChainID, Error: failure.Err.Error()}); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func newPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <id>",
		Short: "Value a single position",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(a *app, args []string) error {
			ad, err := a.resolveOne()
			if err != nil {
				return err
			}
			report, err := ad.Position(a.ctx, args[0])
			if err != nil {
				return err
			}
			return a.out.Write(report)
		}),
	}
}

func newPositionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions <owner>",
		Short: "Value every position of an owner on the selected platforms",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(a *app, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid owner address %q", args[0])
			}
			owner := common.HexToAddress(args[0])

			res := a.resolveSelected()
			for _, failure := range res.Failures {
				a.logger.Warn("adapter unavailable", zap.String("platform", failure.Platform), zap.Error(failure.Err))
			}
			if len(res.Adapters) == 0 {
				return fmt.Errorf("no adapter available on chain %d", a.cfg.ChainID)
			}

			var failed int
			for _, ad := range res.Adapters {
				batch, err := ad.Positions(a.ctx, owner)
				if err != nil {
					failed++
					a.logger.Error("positions failed", zap.String("platform", ad.Platform()), zap.Error(err))
					continue
				}
				a.logger.Info("positions valued",
					zap.String("platform", ad.Platform()),
					zap.Uint64("block", batch.Block),
					zap.Int("reports", len(batch.Reports)),
					zap.Int("failures", len(batch.Failures)),
				)
				for _, report := range batch.Reports {
					if err := a.out.Write(report); err != nil {
						return err
					}
				}
				for _, failure := range batch.Failures {
					a.logger.Warn("position skipped", zap.String("platform", ad.Platform()), zap.String("id", failure.ID), zap.String("error", failure.Err))
				}
			}
			if failed == len(res.Adapters) {
				return fmt.Errorf("positions of %s failed on every platform", owner.Hex())
			}
			return nil
		}),
	}
}
