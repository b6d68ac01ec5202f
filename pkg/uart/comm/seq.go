package comm

// BlockSeq is the 1-byte block number carried by every frame.
type BlockSeq byte

// FirstBlockSeq is the block number of the first frame after connecting.
const FirstBlockSeq BlockSeq = 1

// Next calculates the next block number, wrapping from 255 to 0.
func (s BlockSeq) Next() BlockSeq {
	return s + 1
}

// Prev calculates the previous block number.
func (s BlockSeq) Prev() BlockSeq {
	return s - 1
}

// Complement returns the one's complement sent along with the block number.
func (s BlockSeq) Complement() byte {
	return ^byte(s)
}

// Matches checks the block number against its received complement.
func (s BlockSeq) Matches(complement byte) bool {
	return byte(s)^complement == 0xff
}
