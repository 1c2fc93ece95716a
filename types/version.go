package types

// Version is the canonical project version.
// All components (CLI, mock backend) share this version per the lockstep
// versioning policy. The backend stream contract itself is unversioned;
// see PROTOCOL.md.
const Version = "0.2.0"
