package typing

// Unit is the value carried by effects that produce nothing.
type Unit = struct{}
