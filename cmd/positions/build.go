package main

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"positionScope/internal/adapter"
	"positionScope/internal/model"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build unsigned position-management transactions",
	}
	cmd.PersistentFlags().String("from", "", "sender address")
	cmd.PersistentFlags().String("slippage", "0.5", "slippage tolerance in percent")
	cmd.PersistentFlags().Duration("deadline", 20*time.Minute, "deadline offset from now")

	cmd.AddCommand(
		newBuildCreateCmd(),
		newBuildIncreaseCmd(),
		newBuildDecreaseCmd(),
		newBuildCollectCmd(),
		newBuildCloseCmd(),
		newBuildSwapCmd(),
	)
	return cmd
}

// txOptions are the flags shared by every build subcommand.
type txOptions struct {
	from     common.Address
	slippage decimal.Decimal
	deadline time.Duration
}

func (a *app) txOptions(cmd *cobra.Command) (txOptions, error) {
	raw, _ := cmd.Flags().GetString("from")
	from, err := parseAddress("from", raw, true)
	if err != nil {
		return txOptions{}, err
	}
	slippage, err := decimal.NewFromString(a.cfg.Slippage)
	if err != nil {
		return txOptions{}, fmt.Errorf("slippage %q: %w", a.cfg.Slippage, err)
	}
	return txOptions{from: from, slippage: slippage, deadline: a.cfg.Deadline}, nil
}

// buildRun resolves the adapter, runs build and writes the resulting transaction.
func buildRun(build func(a *app, ad adapter.Adapter, opts txOptions, args []string) (model.UnsignedTx, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return run(func(a *app, args []string) error {
			opts, err := a.txOptions(cmd)
			if err != nil {
				return err
			}
			ad, err := a.resolveOne()
			if err != nil {
				return err
			}
			tx, err := build(a, ad, opts, args)
			if err != nil {
				return err
			}
			a.logger.Info("transaction built",
				zap.String("platform", ad.Platform()),
				zap.String("tx", tx.Description),
				zap.String("to", tx.To),
				zap.Uint64("gas", tx.Gas),
			)
			return a.out.Write(tx)
		})(cmd, args)
	}
}

func newBuildCreateCmd() *cobra.Command {
	var (
		token0, token1, recipient string
		amount0, amount1          string
		priceLower, priceUpper    string
		fee                       uint32
		tickLower, tickUpper      int32
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint a new position",
		Args:  cobra.NoArgs,
		RunE: buildRun(func(a *app, ad adapter.Adapter, opts txOptions, _ []string) (model.UnsignedTx, error) {
			req := adapter.CreatePositionRequest{
				From:      opts.from,
				FeeTier:   fee,
				TickLower: tickLower,
				TickUpper: tickUpper,
				Slippage:  opts.slippage,
				Deadline:  opts.deadline,
			}
			var err error
			if req.Token0, err = parseAddress("token0", token0, true); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.Token1, err = parseAddress("token1", token1, true); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.Recipient, err = parseAddress("recipient", recipient, false); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.Amount0Desired, err = parseAmount("amount0", amount0); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.Amount1Desired, err = parseAmount("amount1", amount1); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.PriceLower, err = parseOptionalDecimal("price-lower", priceLower); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.PriceUpper, err = parseOptionalDecimal("price-upper", priceUpper); err != nil {
				return model.UnsignedTx{}, err
			}
			return ad.BuildCreatePosition(a.ctx, req)
		}),
	}
	cmd.Flags().StringVar(&token0, "token0", "", "token0 address (must sort before token1)")
	cmd.Flags().StringVar(&token1, "token1", "", "token1 address")
	cmd.Flags().Uint32Var(&fee, "fee", 3000, "fee tier in hundredths of a bip")
	cmd.Flags().Int32Var(&tickLower, "tick-lower", 0, "lower tick")
	cmd.Flags().Int32Var(&tickUpper, "tick-upper", 0, "upper tick")
	cmd.Flags().StringVar(&priceLower, "price-lower", "", "lower price of token1 per token0, overrides --tick-lower")
	cmd.Flags().StringVar(&priceUpper, "price-upper", "", "upper price of token1 per token0, overrides --tick-upper")
	cmd.Flags().StringVar(&amount0, "amount0", "", "desired token0 amount in smallest units")
	cmd.Flags().StringVar(&amount1, "amount1", "", "desired token1 amount in smallest units")
	cmd.Flags().StringVar(&recipient, "recipient", "", "position recipient, defaults to --from")
	return cmd
}

func newBuildIncreaseCmd() *cobra.Command {
	var amount0, amount1 string
	cmd := &cobra.Command{
		Use:   "increase <id>",
		Short: "Add liquidity to a position",
		Args:  cobra.ExactArgs(1),
		RunE: buildRun(func(a *app, ad adapter.Adapter, opts txOptions, args []string) (model.UnsignedTx, error) {
			a0, err := parseAmount("amount0", amount0)
			if err != nil {
				return model.UnsignedTx{}, err
			}
			a1, err := parseAmount("amount1", amount1)
			if err != nil {
				return model.UnsignedTx{}, err
			}
			return ad.BuildIncreaseLiquidity(a.ctx, adapter.IncreaseLiquidityRequest{
				From:           opts.from,
				PositionID:     args[0],
				Amount0Desired: a0,
				Amount1Desired: a1,
				Slippage:       opts.slippage,
				Deadline:       opts.deadline,
			})
		}),
	}
	cmd.Flags().StringVar(&amount0, "amount0", "", "desired token0 amount in smallest units")
	cmd.Flags().StringVar(&amount1, "amount1", "", "desired token1 amount in smallest units")
	return cmd
}

func newBuildDecreaseCmd() *cobra.Command {
	var percent string
	cmd := &cobra.Command{
		Use:   "decrease <id>",
		Short: "Remove a percentage of a position's liquidity",
		Args:  cobra.ExactArgs(1),
		RunE: buildRun(func(a *app, ad adapter.Adapter, opts txOptions, args []string) (model.UnsignedTx, error) {
			pct, err := decimal.NewFromString(percent)
			if err != nil {
				return model.UnsignedTx{}, fmt.Errorf("percent %q: %w", percent, err)
			}
			return ad.BuildDecreaseLiquidity(a.ctx, adapter.DecreaseLiquidityRequest{
				From:       opts.from,
				PositionID: args[0],
				Percent:    pct,
				Slippage:   opts.slippage,
				Deadline:   opts.deadline,
			})
		}),
	}
	cmd.Flags().StringVar(&percent, "percent", "100", "percent of liquidity to remove")
	return cmd
}

func newBuildCollectCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "collect <id>",
		Short: "Collect the fees owed to a position",
		Args:  cobra.ExactArgs(1),
		RunE: buildRun(func(a *app, ad adapter.Adapter, opts txOptions, args []string) (model.UnsignedTx, error) {
			to, err := parseAddress("recipient", recipient, false)
			if err != nil {
				return model.UnsignedTx{}, err
			}
			return ad.BuildCollectFees(a.ctx, adapter.CollectFeesRequest{
				From:       opts.from,
				PositionID: args[0],
				Recipient:  to,
			})
		}),
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "fee recipient, defaults to --from")
	return cmd
}

func newBuildCloseCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Remove all liquidity, collect and burn a position",
		Args:  cobra.ExactArgs(1),
		RunE: buildRun(func(a *app, ad adapter.Adapter, opts txOptions, args []string) (model.UnsignedTx, error) {
			to, err := parseAddress("recipient", recipient, false)
			if err != nil {
				return model.UnsignedTx{}, err
			}
			return ad.BuildClosePosition(a.ctx, adapter.ClosePositionRequest{
				From:       opts.from,
				PositionID: args[0],
				Recipient:  to,
				Slippage:   opts.slippage,
				Deadline:   opts.deadline,
			})
		}),
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "token recipient, defaults to --from")
	return cmd
}

func newBuildSwapCmd() *cobra.Command {
	var (
		tokenIn, tokenOut, recipient string
		amountIn, minOut             string
		fee                          uint32
	)
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap an exact input amount through a single pool",
		Args:  cobra.NoArgs,
		RunE: buildRun(func(a *app, ad adapter.Adapter, opts txOptions, _ []string) (model.UnsignedTx, error) {
			req := adapter.SwapRequest{
				From:     opts.from,
				FeeTier:  fee,
				Slippage: opts.slippage,
				Deadline: opts.deadline,
			}
			var err error
			if req.TokenIn, err = parseAddress("token-in", tokenIn, true); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.TokenOut, err = parseAddress("token-out", tokenOut, true); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.Recipient, err = parseAddress("recipient", recipient, false); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.AmountIn, err = parseAmount("amount-in", amountIn); err != nil {
				return model.UnsignedTx{}, err
			}
			if req.AmountOutMinimum, err = parseAmount("min-out", minOut); err != nil {
				return model.UnsignedTx{}, err
			}
			return ad.BuildSwap(a.ctx, req)
		}),
	}
	cmd.Flags().StringVar(&tokenIn, "token-in", "", "input token address")
	cmd.Flags().StringVar(&tokenOut, "token-out", "", "output token address")
	cmd.Flags().Uint32Var(&fee, "fee", 3000, "fee tier in hundredths of a bip")
	cmd.Flags().StringVar(&amountIn, "amount-in", "", "input amount in smallest units")
	cmd.Flags().StringVar(&minOut, "min-out", "", "minimum output, derived from the spot price when empty")
	cmd.Flags().StringVar(&recipient, "recipient", "", "output recipient, defaults to --from")
	return cmd
}

func parseAddress(name, value string, required bool) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("--%s is required", name)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

// parseAmount parses a base-10 integer amount; an empty value is nil.
func parseAmount(name, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("--%s: invalid amount %q", name, value)
	}
	return amount, nil
}

func parseOptionalDecimal(name, value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &d, nil
}
