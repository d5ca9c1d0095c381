package types

// Version is the canonical project version.
// The CLI and the segment frame contract share this version.
const Version = "0.2.0"

// FrameContractVersion is the segment frame contract version.
// Encoders stamp it on every frame; decoders accept frames without it.
const FrameContractVersion = Version
