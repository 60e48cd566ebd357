package protocol

// Transfer is one host request: a command byte and, for WRITE, a word
type Transfer struct {
	Cmd  byte
	Word uint32
}

// TransferLen returns the number of bytes a transfer occupies on the wire
func TransferLen(cmd byte) int {
	if cmd == CmdWrite {
		return 1 + WordBytes
	}
	return 1
}

// AppendTransfers encodes transfers onto dst
func AppendTransfers(dst []byte, transfers ...Transfer) []byte {
	for _, t := range transfers {
		dst = append(dst, t.Cmd)
		if t.Cmd == CmdWrite {
			var w [WordBytes]byte
			PutWord(w[:], t.Word)
			dst = append(dst, w[:]...)
		}
	}
	return dst
}

// TransferStarts returns the offset of every transfer in an encoded frame
func TransferStarts(frame []byte) []int {
	var starts []int
	for i := 0; i < len(frame); i += TransferLen(frame[i]) {
		starts = append(starts, i)
	}
	return starts
}
