package main

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-fees/core/fee"
)

func (cli *commandLine) assignFees(structureID string) error {
	res, err := cli.feeSvc.AssignFees(context.Background(), fee.AssignFees{FeeStructureID: structureID})
	if err != nil {
		return err
	}
	fmt.Printf("assigned %d student fees, %d students already had this fee\n", len(res.Created), len(res.Skipped))
	return nil
}
