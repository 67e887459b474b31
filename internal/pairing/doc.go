// Package pairing implements the QR connection flow for an instance.
//
// A Flow requests the pairing artifact, then polls the remote connection
// state at a fixed interval until the instance reports paired, the ceiling
// expires, or the flow is closed. The ceiling surfaces as an explicit
// timeout error rather than a silent stop, so the dashboard can offer a
// retry. All timers are cancelled on Close; the success callback never
// fires against a torn-down flow.
package pairing
