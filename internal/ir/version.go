package ir

const (
	// IRVersion is the schema version of serialized compilation units.
	IRVersion = "1"

	// CompilerVersion participates in build tokens, so bumping it
	// invalidates cached kernels.
	CompilerVersion = "0.3.0"

	// UnitFormat tags serialized compilation units.
	UnitFormat = "aotc/unit"
)
