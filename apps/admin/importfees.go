package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/masomo-fees/core/fee"
)

// feeCatalogue is the YAML document read by importfees:
//
//	heads:
//	  - name: Tuition
//	    description: Teaching and examinations
//	structures:
//	  - program: BSc
//	    head: Tuition
//	    academic_session: 2026-2027
//	    amount: "5000"
//	    frequency: annually
//	    due_date: 2026-09-30
//	    late_fee: "250"
type feeCatalogue struct {
	Heads      []fee.NewFeeHead     `yaml:"heads"`
	Structures []catalogueStructure `yaml:"structures"`
}

type catalogueStructure struct {
	Program         string `yaml:"program"`
	Head            string `yaml:"head"`
	AcademicSession string `yaml:"academic_session"`
	Amount          string `yaml:"amount"`
	Frequency       string `yaml:"frequency"`
	DueDate         string `yaml:"due_date"`
	LateFee         string `yaml:"late_fee"`
}

func (cs catalogueStructure) toNewFeeStructure(headID string) (fee.NewFeeStructure, error) {
	amount, err := decimal.NewFromString(cs.Amount)
	if err != nil {
		return fee.NewFeeStructure{}, errors.Errorf("invalid amount %q", cs.Amount)
	}
	lateFee := decimal.Zero
	if cs.LateFee != "" {
		if lateFee, err = decimal.NewFromString(cs.LateFee); err != nil {
			return fee.NewFeeStructure{}, errors.Errorf("invalid late_fee %q", cs.LateFee)
		}
	}
	dueDate, err := time.Parse("2006-01-02", cs.DueDate)
	if err != nil {
		return fee.NewFeeStructure{}, errors.Errorf("invalid due_date %q, expected YYYY-MM-DD", cs.DueDate)
	}
	return fee.NewFeeStructure{
		Program:         cs.Program,
		FeeHeadID:       headID,
		AcademicSession: cs.AcademicSession,
		Amount:          amount,
		Frequency:       fee.Frequency(cs.Frequency),
		DueDate:         dueDate,
		LateFee:         lateFee,
	}, nil
}

func readCatalogue(path string) (feeCatalogue, error) {
	var cat feeCatalogue
	data, err := os.ReadFile(path)
	if err != nil {
		return cat, err
	}
	if err = yaml.Unmarshal(data, &cat); err != nil {
		return cat, errors.Wrap(err, "parsing catalogue")
	}
	return cat, nil
}

// importFees creates the catalogue's fee heads and structures, skipping the ones that already exist.
func (cli *commandLine) importFees(path string) error {
	cat, err := readCatalogue(path)
	if err != nil {
		return err
	}
	ctx := context.Background()

	heads, err := cli.feeSvc.QueryFeeHeads(ctx)
	if err != nil {
		return err
	}
	headIDs := make(map[string]string, len(heads))
	for _, head := range heads {
		headIDs[strings.ToLower(head.Name)] = head.ID
	}

	var createdHeads, createdStructures, skipped int
	for _, nh := range cat.Heads {
		if _, ok := headIDs[strings.ToLower(strings.TrimSpace(nh.Name))]; ok {
			skipped++
			continue
		}
		head, err := cli.feeSvc.CreateFeeHead(ctx, nh)
		if err != nil {
			return errors.Wrapf(err, "fee head %q", nh.Name)
		}
		headIDs[strings.ToLower(head.Name)] = head.ID
		createdHeads++
	}

	for i, cs := range cat.Structures {
		headID, ok := headIDs[strings.ToLower(strings.TrimSpace(cs.Head))]
		if !ok {
			return errors.Errorf("structure #%d: unknown fee head %q", i+1, cs.Head)
		}
		ns, err := cs.toNewFeeStructure(headID)
		if err != nil {
			return errors.Wrapf(err, "structure #%d", i+1)
		}

		existing, err := cli.feeSvc.QueryFeeStructures(ctx, &fee.StructureFilter{
			Program:         ns.Program,
			AcademicSession: ns.AcademicSession,
			FeeHeadID:       headID,
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			skipped++
			continue
		}

		if _, err = cli.feeSvc.CreateFeeStructure(ctx, ns); err != nil {
			return errors.Wrapf(err, "structure #%d", i+1)
		}
		createdStructures++
	}

	fmt.Printf("created %d fee heads and %d fee structures, skipped %d existing\n", createdHeads, createdStructures, skipped)
	return nil
}
