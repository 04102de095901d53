package eventlog

import "fmt"

// CheckStatus is the outcome of one verification check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusFail CheckStatus = "fail"
	StatusWarn CheckStatus = "warn"
)

// Check is one named verification step.
type Check struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// VerifyResult summarizes the integrity of an event chain.
type VerifyResult struct {
	EntryCount int     `json:"entry_count"`
	Valid      bool    `json:"valid"`
	Checks     []Check `json:"checks"`
}

// Counts returns the number of failed and warning checks.
func (r VerifyResult) Counts() (failures, warnings int) {
	for _, c := range r.Checks {
		switch c.Status {
		case StatusFail:
			failures++
		case StatusWarn:
			warnings++
		}
	}
	return failures, warnings
}

func (r *VerifyResult) add(name string, ok bool, failStatus CheckStatus, detail string) {
	c := Check{Name: name, Status: StatusPass, Detail: detail}
	if !ok {
		c.Status = failStatus
		if failStatus == StatusFail {
			r.Valid = false
		}
	}
	r.Checks = append(r.Checks, c)
}

// Verify checks a complete chain, as returned by Entries(0).
func Verify(entries []Entry) VerifyResult {
	result := VerifyResult{EntryCount: len(entries), Valid: true}

	if len(entries) == 0 {
		result.add("empty_chain", true, StatusPass, "no entries to verify")
		return result
	}

	// 1. Genesis anchor.
	first := entries[0]
	detail := ""
	if first.PrevHash != GenesisHash {
		detail = fmt.Sprintf("first entry prev_hash=%s, expected genesis hash", first.PrevHash)
	}
	result.add("genesis_anchor", detail == "", StatusFail, detail)

	// 2. Every stored hash matches its content.
	detail = ""
	for i, e := range entries {
		if want := ChainHash(e.Seq, e.Event, e.PrevHash); e.Hash != want {
			detail = fmt.Sprintf("entry %d (seq=%d) has hash=%s but content hashes to %s", i, e.Seq, e.Hash, want)
			break
		}
	}
	if detail == "" {
		result.add("entry_hashes", true, StatusPass, "")
	} else {
		result.add("entry_hashes", false, StatusFail, detail)
	}

	// 3. Chain continuity.
	detail = ""
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			detail = fmt.Sprintf("entry %d (seq=%d) has prev_hash=%s but entry %d has hash=%s",
				i, entries[i].Seq, entries[i].PrevHash, i-1, entries[i-1].Hash)
			break
		}
	}
	if detail == "" {
		result.add("chain_continuity", true, StatusPass, fmt.Sprintf("all %d entries link correctly", len(entries)))
	} else {
		result.add("chain_continuity", false, StatusFail, detail)
	}

	// 4. Contiguous sequence numbers.
	detail = ""
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq != entries[i-1].Seq+1 {
			detail = fmt.Sprintf("seq jumps from %d to %d", entries[i-1].Seq, entries[i].Seq)
			break
		}
	}
	result.add("contiguous_sequence", detail == "", StatusFail, detail)

	// 5. No duplicate IDs.
	detail = ""
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if prev, ok := seen[e.ID]; ok {
			detail = fmt.Sprintf("entry %d and entry %d share id=%s", prev, i, e.ID)
			break
		}
		seen[e.ID] = i
	}
	result.add("no_duplicate_ids", detail == "", StatusFail, detail)

	// 6. Monotonic timestamps. Clock skew is a warning, not a failure.
	detail = ""
	for i := 1; i < len(entries); i++ {
		if entries[i].Time.Before(entries[i-1].Time) {
			detail = fmt.Sprintf("entry %d (time=%s) is earlier than entry %d", i, entries[i].Time, i-1)
			break
		}
	}
	result.add("monotonic_timestamps", detail == "", StatusWarn, detail)

	return result
}
