// Package testutil provides testing utilities for walfile.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Workloads
//
//	rng := testutil.NewRNG(seed)
//	writes := rng.Writes(100, 1<<16, 512) // skewed towards hot regions
//	want := testutil.Apply(original, writes)
//
// # File Fixtures
//
//	path := testutil.TempFile(t, "data.bin", []byte("hello"))
//	got := testutil.ReadFile(t, path)
package testutil
