package comms

// Register block layout. The block sits inside the served ROM image at a
// base aligned to BlockSize, so a single mask both locates the block and
// extracts the signalled byte from an out-window access. The offsets are
// wire protocol: target-side drivers compiled against the "PICO" magic
// depend on every one of them.
//
//	0x000  magic    "PICO"
//	0x004  active   u32, low byte meaningful
//	0x008  pending  u32, non-zero while inbound data awaits consumption
//	0x00C  in_seq   u32, bumped when a new byte enters the mailbox
//	0x010  out_seq  u32, bumped when an outbound byte has been captured
//	0x014  ...      reserved
//	0x200  in_byte  u32, the inbound mailbox
//	0x204  ...      reserved
//	0x300  out_area 256 bytes; the address offset, not the content, is the
//	                datum of an outbound access
const (
	// BlockSize is the register block footprint and its required alignment.
	BlockSize = 0x400

	// WatchWindowOffset is where the watched 512-byte window begins,
	// relative to the block base. Accesses inside the window with
	// OutAccessBit set carry an outbound byte in their low eight bits;
	// an access at exactly the window base is the mailbox-consumed signal.
	WatchWindowOffset = 0x200

	// MailboxOffset is the in_byte cell, relative to the block base.
	MailboxOffset = 0x200

	// OutWindowOffset is the first byte of the address-encoded outbound
	// window, relative to the block base.
	OutWindowOffset = 0x300

	// OutAccessBit distinguishes an out-window access from a mailbox read
	// within the watched window.
	OutAccessBit = 0x100

	regMagic   = 0x000
	regActive  = 0x004
	regPending = 0x008
	regInSeq   = 0x00C
	regOutSeq  = 0x010
)

// Magic identifies the protocol to the target.
var Magic = [4]byte{'P', 'I', 'C', 'O'}

// AlignBase clamps a raw session address to the containing block base.
func AlignBase(addr, busSize uint32) uint32 {
	return addr & (busSize - 1) &^ (BlockSize - 1)
}
