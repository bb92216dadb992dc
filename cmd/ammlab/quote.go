package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"ammlab/internal/amm"
	"ammlab/internal/model"
	"ammlab/internal/service"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	feeNum, _ := flags.GetInt64("fee-num")
	feeDen, _ := flags.GetInt64("fee-den")
	fee := amm.Fee{Num: feeNum, Den: feeDen}
	if err := fee.Validate(); err != nil {
		return err
	}

	reserveIn, err := bigFlag(cmd, "reserve-in")
	if err != nil {
		return err
	}
	reserveOut, err := bigFlag(cmd, "reserve-out")
	if err != nil {
		return err
	}

	if raw, _ := flags.GetString("amount-out"); raw != "" {
		amountOut, err := bigFlag(cmd, "amount-out")
		if err != nil {
			return err
		}
		in, err := amm.QuoteInputForExactOutput(reserveIn, reserveOut, amountOut, fee)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), model.QuoteResult{
			ReserveIn:  reserveIn.String(),
			ReserveOut: reserveOut.String(),
			AmountIn:   in.String(),
			AmountOut:  amountOut.String(),
			FeePaid:    fee.Charged(in).String(),
			Fee:        fee.String(),
		})
	}

	amountIn, err := bigFlag(cmd, "amount-in")
	if err != nil {
		return err
	}
	res, err := service.NewQuoteService(nil, nil, fee).Quote(reserveIn, reserveOut, amountIn, fee)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func bigFlag(cmd *cobra.Command, name string) (*big.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("--%s: invalid integer %q", name, raw)
	}
	return v, nil
}
