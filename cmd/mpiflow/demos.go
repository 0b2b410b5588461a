package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/drblury/mpiflow/internal/runtime"
	"github.com/drblury/mpiflow/internal/runtime/comm"
	"github.com/drblury/mpiflow/internal/runtime/op"
	"github.com/drblury/mpiflow/internal/runtime/win"
)

// demo is a rank program. Only rank 0 writes to out.
type demo func(rt *runtime.Runtime, out io.Writer) error

var demos = map[string]demo{
	"allreduce": allReduceDemo,
	"alltoall":  allToAllDemo,
	"gather":    gatherDemo,
	"ring":      ringDemo,
	"rma":       rmaDemo,
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookupDemo(name string) (demo, error) {
	d, ok := demos[name]
	if !ok {
		return nil, fmt.Errorf("unknown demo %q (choose one of %s)", name, strings.Join(demoNames(), ", "))
	}
	return d, nil
}

func worldShape(rt *runtime.Runtime) (rank, size int32, err error) {
	if rank, err = rt.World().Rank(); err != nil {
		return 0, 0, err
	}
	size, err = rt.World().Size()
	return rank, size, err
}

func allReduceDemo(rt *runtime.Runtime, out io.Writer) error {
	rank, size, err := worldShape(rt)
	if err != nil {
		return err
	}
	sum, err := comm.AllReduceValue(rt.World(), op.Sum[int64](), int64(rank)+1)
	if err != nil {
		return err
	}
	if rank == 0 {
		fmt.Fprintf(out, "allreduce: sum of 1..%d = %d\n", size, sum)
	}
	return nil
}

func gatherDemo(rt *runtime.Runtime, out io.Writer) error {
	rank, _, err := worldShape(rt)
	if err != nil {
		return err
	}
	if rank != 0 {
		return comm.GatherValue(rt.World(), 0, rank*rank)
	}
	squares, err := comm.GatherValueIntoRoot(rt.World(), 0, rank*rank)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "gather: squares = %v\n", squares)
	return nil
}

// ringDemo passes a token once around the world, each rank adding its rank.
func ringDemo(rt *runtime.Runtime, out io.Writer) error {
	const tag = 7
	rank, size, err := worldShape(rt)
	if err != nil {
		return err
	}
	if size == 1 {
		fmt.Fprintln(out, "ring: token = 0 after 1 hop")
		return nil
	}
	next, prev := (rank+1)%size, (rank+size-1)%size
	token := []int64{0}
	if rank == 0 {
		if err := comm.Send(rt.World(), token, next, tag); err != nil {
			return err
		}
		if err := comm.Recv(rt.World(), token, prev, tag); err != nil {
			return err
		}
		fmt.Fprintf(out, "ring: token = %d after %d hops\n", token[0], size)
		return nil
	}
	if err := comm.Recv(rt.World(), token, prev, tag); err != nil {
		return err
	}
	token[0] += int64(rank)
	return comm.Send(rt.World(), token, next, tag)
}

func allToAllDemo(rt *runtime.Runtime, out io.Writer) error {
	rank, size, err := worldShape(rt)
	if err != nil {
		return err
	}
	send := make([]int32, size)
	for dest := range send {
		send[dest] = rank*100 + int32(dest)
	}
	recv, err := comm.AllToAllValues(rt.World(), send)
	if err != nil {
		return err
	}
	var local int64
	for _, v := range recv {
		local += int64(v)
	}
	total, err := comm.AllReduceValue(rt.World(), op.Sum[int64](), local)
	if err != nil {
		return err
	}
	if rank == 0 {
		fmt.Fprintf(out, "alltoall: rank 0 received %v, checksum %d\n", recv, total)
	}
	return nil
}

// rmaDemo has every rank bump a counter in rank 0's window under an
// exclusive lock.
func rmaDemo(rt *runtime.Runtime, out io.Writer) error {
	const bumps = 5
	rank, size, err := worldShape(rt)
	if err != nil {
		return err
	}
	w, err := win.Allocate[int64](rt.World(), 1)
	if err != nil {
		return err
	}

	for range bumps {
		if err := w.Lock(win.LockExclusive, 0, 0); err != nil {
			return err
		}
		v := []int64{0}
		if err := w.Get(v, 0, 0); err != nil {
			return err
		}
		v[0]++
		if err := w.Put(v, 0, 0); err != nil {
			return err
		}
		if err := w.Unlock(0); err != nil {
			return err
		}
	}
	if err := rt.World().Barrier(); err != nil {
		return err
	}
	if rank == 0 {
		base, err := w.Base()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rma: counter = %d (want %d)\n", base[0], int64(size)*bumps)
	}
	return w.Close()
}
