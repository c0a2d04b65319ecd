package sockopt

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// longSize is the size of a C long on this platform.
const longSize = int(unsafe.Sizeof(uintptr(0)))

// TimevalLayout is the shape of struct timeval used by SO_RCVTIMEO/SO_SNDTIMEO. The platforms
// agree on the fields (seconds then microseconds) but not their widths. A layout is picked once
// by the platform package and used for every call.
type TimevalLayout struct {
	name     string
	secSize  int
	usecSize int
}

var (
	// TimevalLong is {long tv_sec; long tv_usec;}. Linux, FreeBSD, Solaris.
	TimevalLong = TimevalLayout{name: "long", secSize: longSize, usecSize: longSize}

	// TimevalInt32Usec is {long tv_sec; int32 tv_usec;}. Darwin and AIX.
	TimevalInt32Usec = TimevalLayout{name: "int32usec", secSize: longSize, usecSize: 4}

	// TimevalInt64Sec is {int64 tv_sec; long tv_usec;}. OpenBSD and NetBSD.
	TimevalInt64Sec = TimevalLayout{name: "int64sec", secSize: 8, usecSize: longSize}
)

func (t TimevalLayout) String() string {
	return fmt.Sprintf("Timeval(%s)", t.name)
}

// Size is the size of the struct, including trailing padding.
func (t TimevalLayout) Size() int {
	align := t.secSize
	if t.usecSize > align {
		align = t.usecSize
	}
	n := t.secSize + t.usecSize
	return (n + align - 1) / align * align
}

// Encode marshals ms milliseconds into the native struct.
func (t TimevalLayout) Encode(ms int) []byte {
	b := make([]byte, t.Size())
	sec := int64(ms / 1000)
	usec := int64(ms%1000) * 1000
	putInt(b[:t.secSize], sec)
	putInt(b[t.secSize:t.secSize+t.usecSize], usec)
	return b
}

// Decode unmarshals the native struct into milliseconds: sec*1000 + usec/1000.
func (t TimevalLayout) Decode(b []byte) (int, error) {
	if len(b) < t.secSize+t.usecSize {
		return 0, fmt.Errorf("timeval is %d bytes, want %d", len(b), t.Size())
	}
	sec := getInt(b[:t.secSize])
	usec := getInt(b[t.secSize : t.secSize+t.usecSize])
	return int(sec*1000 + usec/1000), nil
}

func putInt(b []byte, v int64) {
	switch len(b) {
	case 4:
		binary.NativeEndian.PutUint32(b, uint32(int32(v)))
	case 8:
		binary.NativeEndian.PutUint64(b, uint64(v))
	default:
		panic(fmt.Sprintf("bug: timeval field of %d bytes", len(b)))
	}
}

func getInt(b []byte) int64 {
	switch len(b) {
	case 4:
		return int64(int32(binary.NativeEndian.Uint32(b)))
	case 8:
		return int64(binary.NativeEndian.Uint64(b))
	}
	panic(fmt.Sprintf("bug: timeval field of %d bytes", len(b)))
}
