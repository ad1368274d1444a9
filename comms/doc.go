// Package comms implements the byte channel tunnelled through the emulated
// ROM's address/data bus.
//
// The bus is read-only from the target's point of view, so the channel
// encodes each direction differently. Bytes travelling from the target to
// the firmware hitchhike on address selection: the target reads an address
// inside a reserved 256-byte window and the low eight bits of that address
// are the payload. Bytes travelling to the target are placed in a mailbox
// cell inside the register block; the act of reading the mailbox address is
// the consumption signal that advances the stream.
//
// Exactly one session is active at a time. The register block is embedded in
// the served ROM image at a 1 KiB aligned base chosen when the session
// begins, so a target-side driver can locate it with a single address mask.
//
// Two execution contexts share the channel state: the bus event context
// (interrupt priority on hardware, the simulated target's read path on the
// host) and the foreground task that runs the pump. Each ring has one fixed
// producer and one fixed consumer, with atomic index counters; nothing in
// the event path blocks, locks or allocates.
package comms
