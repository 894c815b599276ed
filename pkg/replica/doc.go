/*
Package replica implements the consistent-hash replica selector: a
deterministic total order over a fleet snapshot for one logical path.

The same order is used for two purposes by callers of this package:

  - worker pod trial order (first candidate tried first)
  - preheat-set election (first K become the authorized replicas)

Because the order is a pure function of (logical path, pod id set), every
worker that reads the same fresh-pod snapshot converges on the same
preferred replicas without any coordination beyond reading pods:active.
*/
package replica
