package heapmm

// Validatable is anything that can check its own structural invariants, such as a heap
// walking its boundary tags. DebugValidate calls it after every mutation in debug builds.
type Validatable interface {
	Validate() error
}
