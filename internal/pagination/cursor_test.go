package pagination

import (
	"errors"
	"testing"

	"batchread/internal/contract"
)

func page(vals ...interface{}) contract.BatchResult {
	out := make(contract.BatchResult, len(vals))
	for i, v := range vals {
		out[i] = contract.CallResult{Values: []interface{}{v}}
	}
	return out
}

func failedPage() contract.BatchResult {
	return contract.BatchResult{{Err: errors.New("execution reverted")}}
}

func TestIndexCursor_Ascending(t *testing.T) {
	cursor := IndexCursor(0, 3, false)

	param, ok := cursor(nil)
	if !ok || param.(int) != 0 {
		t.Fatalf("initial param = %v, %v", param, ok)
	}

	pages := []contract.BatchResult{page("a", "b", "c")}
	param, ok = cursor(pages)
	if !ok || param.(int) != 3 {
		t.Fatalf("second param = %v, %v", param, ok)
	}

	pages = append(pages, page("d", "e", "f"))
	param, ok = cursor(pages)
	if !ok || param.(int) != 6 {
		t.Fatalf("third param = %v, %v", param, ok)
	}
}

func TestIndexCursor_Descending(t *testing.T) {
	cursor := IndexCursor(5, 3, true)

	param, ok := cursor(nil)
	if !ok || param.(int) != 5 {
		t.Fatalf("initial param = %v, %v", param, ok)
	}

	pages := []contract.BatchResult{page("a")}
	param, ok = cursor(pages)
	if !ok || param.(int) != 2 {
		t.Fatalf("second param = %v, %v", param, ok)
	}

	// Next index would be -1
	pages = append(pages, page("b"))
	if _, ok := cursor(pages); ok {
		t.Error("descending cursor went below zero")
	}
}

func TestIndexCursor_StopsOnEmptyPage(t *testing.T) {
	cursor := IndexCursor(0, 10, false)

	pages := []contract.BatchResult{page("a"), {}}
	if _, ok := cursor(pages); ok {
		t.Error("cursor continued past an empty page")
	}
}

func TestIndexCursor_StopsOnFailedPage(t *testing.T) {
	cursor := IndexCursor(0, 10, false)

	pages := []contract.BatchResult{page("a"), failedPage()}
	if _, ok := cursor(pages); ok {
		t.Error("cursor continued past a failed page")
	}
}
