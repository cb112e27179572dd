// Package pagination derives successive batches from a pluggable
// cursor: a pure function of the pages fetched so far.
package pagination

import "batchread/internal/contract"

// Param is a page parameter, fed to the descriptor generator
type Param = interface{}

// Cursor computes the next page's parameter from the accumulated pages.
// ok == false means no more pages. Called with no pages it must return
// the initial parameter.
type Cursor func(pages []contract.BatchResult) (param Param, ok bool)

// DescriptorFn builds the calls for one page from its parameter
type DescriptorFn func(param Param) []contract.CallDescriptor

// IndexCursor pages through a numeric index, advancing perPage each
// page. A descending cursor stops at zero; both directions stop once a
// fetched page came back empty or contained a failed call, which is how
// running off the end of an on-chain list shows up.
func IndexCursor(start, perPage int, descending bool) Cursor {
	return func(pages []contract.BatchResult) (Param, bool) {
		if len(pages) > 0 {
			last := pages[len(pages)-1]
			if len(last) == 0 || last.FirstError() != nil {
				return nil, false
			}
		}

		offset := len(pages) * perPage
		if descending {
			next := start - offset
			if next < 0 {
				return nil, false
			}
			return next, true
		}
		return start + offset, true
	}
}
