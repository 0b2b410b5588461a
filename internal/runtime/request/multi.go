package request

import (
	"github.com/drblury/mpiflow/internal/engine"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
)

// gather collects the raw handles of reqs and the engine they belong to.
// eng is nil when no request was ever bound to an engine.
func gather(op string, reqs []Unique) ([]engine.Request, engine.Engine, error) {
	if _, err := errspkg.CheckCount(op, len(reqs)); err != nil {
		return nil, nil, err
	}
	raws := make([]engine.Request, len(reqs))
	var eng engine.Engine
	for i, r := range reqs {
		raws[i] = r.Raw()
		if eng == nil {
			eng = r.eng()
		}
	}
	return raws, eng, nil
}

func scatter(reqs []Unique, raws []engine.Request) {
	for i, r := range reqs {
		r.store(raws[i])
	}
}

func anyActive(raws []engine.Request) bool {
	for _, r := range raws {
		if r != engine.RequestNull {
			return true
		}
	}
	return false
}

// WaitAny blocks until one request completes and returns its index and
// status. At least one request must be active.
func WaitAny(reqs []Unique) (int, Status, error) {
	raws, eng, err := gather("wait_any", reqs)
	if err != nil {
		return 0, Status{}, err
	}
	if eng == nil || !anyActive(raws) {
		errspkg.Violatef("wait_any", -1, "no active requests among %d", len(reqs))
	}

	var (
		idx int32
		st  engine.Status
	)
	code := eng.Waitany(raws, &idx, &st)
	scatter(reqs, raws)
	if err := errspkg.Check("wait_any", code, eng.ErrorString); err != nil {
		return 0, Status{}, err
	}
	if idx == engine.Undefined {
		errspkg.Violatef("wait_any", -1, "no active requests among %d", len(reqs))
	}
	return int(idx), FromRaw(st), nil
}

// WaitAll blocks until every request completes. statuses may be nil; when
// given it must have room for one status per request, in request order.
func WaitAll(reqs []Unique, statuses []Status) error {
	if statuses != nil && len(statuses) < len(reqs) {
		errspkg.Violatef("wait_all", -1, "%d statuses supplied for %d requests", len(statuses), len(reqs))
	}
	raws, eng, err := gather("wait_all", reqs)
	if err != nil {
		return err
	}
	if eng == nil {
		for i := range reqs {
			if statuses != nil {
				statuses[i] = Empty()
			}
		}
		return nil
	}

	var raw []engine.Status
	if statuses != nil {
		raw = make([]engine.Status, len(reqs))
	}
	code := eng.Waitall(raws, raw)
	scatter(reqs, raws)
	for i := range raw {
		statuses[i] = FromRaw(raw[i])
	}
	return errspkg.Check("wait_all", code, eng.ErrorString)
}

// WaitAllStatuses is WaitAll returning a freshly allocated status slice.
func WaitAllStatuses(reqs []Unique) ([]Status, error) {
	statuses := make([]Status, len(reqs))
	if err := WaitAll(reqs, statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// WaitSome blocks until at least one request completes, writes the indices
// of every completed request into indices and returns how many there are.
// statuses may be nil. Calling it with nothing outstanding is a contract
// violation.
func WaitSome(reqs []Unique, indices []int, statuses []Status) (int, error) {
	if len(indices) < len(reqs) {
		errspkg.Violatef("wait_some", -1, "%d index slots supplied for %d requests", len(indices), len(reqs))
	}
	if statuses != nil && len(statuses) < len(reqs) {
		errspkg.Violatef("wait_some", -1, "%d statuses supplied for %d requests", len(statuses), len(reqs))
	}
	raws, eng, err := gather("wait_some", reqs)
	if err != nil {
		return 0, err
	}
	if eng == nil {
		errspkg.Violatef("wait_some", -1, "no outstanding requests")
	}

	var (
		out    int32
		rawIdx = make([]int32, len(reqs))
		rawSt  []engine.Status
	)
	if statuses != nil {
		rawSt = make([]engine.Status, len(reqs))
	}
	code := eng.Waitsome(raws, &out, rawIdx, rawSt)
	scatter(reqs, raws)
	if err := errspkg.Check("wait_some", code, eng.ErrorString); err != nil {
		return 0, err
	}
	if out == engine.Undefined {
		errspkg.Violatef("wait_some", -1, "no outstanding requests")
	}
	for i := 0; i < int(out); i++ {
		indices[i] = int(rawIdx[i])
		if statuses != nil {
			statuses[i] = FromRaw(rawSt[i])
		}
	}
	return int(out), nil
}

// WaitSomeInto is WaitSome appending the completed indices to *out.
func WaitSomeInto(reqs []Unique, out *[]int) error {
	indices := make([]int, len(reqs))
	n, err := WaitSome(reqs, indices, nil)
	if err != nil {
		return err
	}
	*out = append(*out, indices[:n]...)
	return nil
}
