// Package graph builds and mutates the phase-node dependency graph the
// scheduler walks.
//
// Every work item expands into a strictly linear chain of phase nodes
// (worker → verify → wrapup → commit, or worker → wrapup → commit in reduced
// mode). Cross-item edges only join a consumer's first phase to a producer's
// last phase. A fixed finalize chain closes the graph and waits on every item.
//
// Nodes are stored in an id → node arena with an insertion-ordered id list;
// nothing holds a pointer to another node, so the graph serializes as a flat
// list and cycles can only come from the declarations, which Build rejects.
package graph
