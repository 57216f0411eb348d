// Package engine drives checkpointed batch execution.
//
// The Runner owns the run lifecycle: validate the input, resume or
// initialize the checkpoint, take the run lock, then process batches
// strictly in order, persisting a checkpoint after each one. What
// happens to the items inside a batch is delegated to an Adapter;
// adapters exist for single-sequence mapping, pairwise and named
// multi-sequence mapping, index-aware mapping and side-effect
// iteration, plus a Parallel wrapper that fans one batch's items
// across a bounded worker set.
package engine
