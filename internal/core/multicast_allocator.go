package core

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// multicastAllocator hands out destination group addresses from a
// configured range, one per forwarder.
type multicastAllocator struct {
	network *net.IPNet

	mutex  sync.Mutex
	offset uint64
}

func newMulticastAllocator(cidr string) (*multicastAllocator, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}

	if network.IP.To4() == nil {
		return nil, fmt.Errorf("multicast range must be IPv4 (%s)", cidr)
	}

	return &multicastAllocator{
		network: network,
	}, nil
}

// ip returns the next group address, wrapping inside the range.
func (a *multicastAllocator) ip() net.IP {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	ones, bits := a.network.Mask.Size()
	hostCount := uint64(1) << uint(bits-ones)

	a.offset = (a.offset + 1) % hostCount

	base := binary.BigEndian.Uint32(a.network.IP.To4())
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, base+uint32(a.offset))
	return ip
}
