package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/services/export"
)

func (cli *commandLine) exportLedger(out, program string) error {
	entries, err := cli.feeSvc.Ledger(context.Background(), &fee.StudentFeeFilter{})
	if err != nil {
		return err
	}
	if program != "" {
		kept := entries[:0]
		for _, e := range entries {
			if e.Program == program {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	data, err := exportsvc.LedgerXLSX(entries, cli.conf.Ledger.Currency)
	if err != nil {
		return err
	}
	if err = os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %d ledger rows to %s\n", len(entries), out)
	return nil
}
