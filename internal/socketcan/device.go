//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/Karlsx/go-canproto/internal/can"
)

// CANFD_MTU is sizeof(struct canfd_frame) per linux/can.h. x/sys/unix does
// not export this constant (only CAN_MTU), so it is defined here.
const canfdMTU = 72

// Device is a raw SocketCAN endpoint. With fdFrames enabled the socket
// accepts both classic and FD frames; otherwise the kernel delivers
// classic frames only.
type Device struct {
	fd       int
	fdFrames bool
}

// Open binds a raw CAN socket to iface. fdFrames switches the socket into
// CAN-FD mode (CAN_RAW_FD_FRAMES).
func Open(iface string, fdFrames bool) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	opt := 0
	if fdFrames {
		opt = 1
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, opt); err != nil {
		// Older kernels may not know this option; only fatal when FD was requested.
		if fdFrames || err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("CAN_RAW_FD_FRAMES: %w", err)
		}
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Device{fd: fd, fdFrames: fdFrames}, nil
}

func (d *Device) Close() error { return unix.Close(d.fd) }

// ReadFrame reads one frame from the raw socket. The MTU of the read
// distinguishes classic (16 bytes) from FD (72 bytes) frames.
//
// struct can_frame / canfd_frame (linux/can.h):
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	len     u8    [4]
//	flags/pad     [5:8]
//	data          [8:...]
//
// The kernel provides fields in host byte order; common Linux targets are
// little-endian.
func (d *Device) ReadFrame(fr *can.Frame) error {
	var buf [canfdMTU]byte
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		return err
	}
	switch n {
	case unix.CAN_MTU:
		fr.FD = false
	case canfdMTU:
		fr.FD = true
	default:
		return fmt.Errorf("short read: %d", n)
	}
	fr.ID = binary.LittleEndian.Uint32(buf[0:4])
	dlc := int(buf[4])
	if max := fr.MaxLen(); dlc > max {
		dlc = max
	}
	fr.Len = uint8(dlc)
	copy(fr.Data[:], buf[8:8+dlc])
	return nil
}

// WriteFrame writes one frame to the raw socket, choosing the MTU from the
// frame's flavour.
func (d *Device) WriteFrame(fr can.Frame) error {
	var buf [canfdMTU]byte
	binary.LittleEndian.PutUint32(buf[0:4], fr.ID)
	buf[4] = fr.Len
	mtu := unix.CAN_MTU
	if fr.FD {
		mtu = canfdMTU
	}
	copy(buf[8:], fr.Data[:fr.Len])
	_, err := unix.Write(d.fd, buf[:mtu])
	return err
}
