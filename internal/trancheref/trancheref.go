// Package trancheref handles the wire form of compound tranche ids.
// A reference names a loan and one of its tranches: {loanID}:{tranche},
// e.g. "London:A".
package trancheref

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/peervest/lending-engine/internal/model"
)

// refRegex matches: {loanID}:{trancheName}
// Loan ids are free-form apart from the separator; tranche names are
// one or more uppercase letters ("A", "B", ...).
var refRegex = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9 _.-]*):([A-Z]+)$`)

// ErrInvalidRef is returned for strings that do not name a tranche.
var ErrInvalidRef = errors.New("trancheref: invalid tranche reference")

// Parse parses and validates a tranche reference string.
func Parse(ref string) (model.TrancheID, error) {
	matches := refRegex.FindStringSubmatch(ref)
	if matches == nil {
		return model.TrancheID{}, fmt.Errorf("%w: %q (expected {loanID}:{tranche})",
			ErrInvalidRef, ref)
	}
	return model.TrancheID{
		Loan: model.LoanID(matches[1]),
		Name: model.TrancheName(matches[2]),
	}, nil
}

// Format renders a tranche id in its wire form.
func Format(id model.TrancheID) string {
	return fmt.Sprintf("%s:%s", id.Loan, id.Name)
}
