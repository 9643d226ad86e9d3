package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
)

// IPInterval is one inclusive [First, Last] span of the union that makes up
// an iprange (spec.md §3: "iprange is a union of inclusive intervals").
type IPInterval struct {
	First net.IP
	Last  net.IP
}

// IPRangeSpec is the parsed form of a Rule's iprange field: a union of
// inclusive IPv4 or IPv6 intervals. The textual grammar accepts comma
// separated entries of the forms "a.b.c.d", "a.b.c.d-e.f.g.h",
// "a.b.c.d-h" (last octet range) and CIDR ("a.b.c.d/24") — CIDR is a
// supplement over the distilled spec's plain-interval description, grounded
// on go-cidr (a teacher-adjacent indirect dependency) since real discovery
// rules commonly express ranges as CIDR blocks.
type IPRangeSpec struct {
	Intervals []IPInterval
}

// ParseIPRange parses the comma-separated iprange grammar described above.
func ParseIPRange(s string) (IPRangeSpec, error) {
	var spec IPRangeSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		iv, err := parseIPRangePart(part)
		if err != nil {
			return IPRangeSpec{}, fmt.Errorf("invalid iprange part %q: %w", part, err)
		}
		spec.Intervals = append(spec.Intervals, iv)
	}
	if len(spec.Intervals) == 0 {
		return IPRangeSpec{}, fmt.Errorf("empty iprange")
	}
	return spec, nil
}

func parseIPRangePart(part string) (IPInterval, error) {
	if strings.Contains(part, "/") {
		_, ipnet, err := net.ParseCIDR(part)
		if err != nil {
			return IPInterval{}, err
		}
		first, last := cidr.AddressRange(ipnet)
		return IPInterval{First: first, Last: last}, nil
	}

	if idx := strings.Index(part, "-"); idx >= 0 {
		lo, hiFrag := part[:idx], part[idx+1:]
		first := net.ParseIP(lo)
		if first == nil {
			return IPInterval{}, fmt.Errorf("bad address %q", lo)
		}
		// "a.b.c.d-h" form: hiFrag replaces only the last octet of an IPv4
		// address. "a.b.c.d-e.f.g.h" form: hiFrag is a full address.
		if !strings.Contains(hiFrag, ".") && !strings.Contains(hiFrag, ":") {
			last := make(net.IP, len(first))
			copy(last, first)
			v4 := last.To4()
			if v4 == nil {
				return IPInterval{}, fmt.Errorf("last-octet range requires IPv4 base, got %q", lo)
			}
			octet, err := strconv.Atoi(hiFrag)
			if err != nil || octet < 0 || octet > 255 {
				return IPInterval{}, fmt.Errorf("bad last octet %q", hiFrag)
			}
			v4[3] = byte(octet)
			return IPInterval{First: first, Last: v4}, nil
		}
		last := net.ParseIP(hiFrag)
		if last == nil {
			return IPInterval{}, fmt.Errorf("bad address %q", hiFrag)
		}
		return IPInterval{First: first, Last: last}, nil
	}

	ip := net.ParseIP(part)
	if ip == nil {
		return IPInterval{}, fmt.Errorf("bad address %q", part)
	}
	return IPInterval{First: ip, Last: ip}, nil
}

// Each calls fn for every IP address in the range, in ascending order,
// stopping early if fn returns false. It supports IPv4 intervals directly;
// IPv6 intervals are walked the same way but callers should expect very
// large ranges to be capped upstream (the scheduler enforces the queue cap
// long before exhausting an IPv6 /64).
func (s IPRangeSpec) Each(fn func(ip net.IP) bool) {
	for _, iv := range s.Intervals {
		cur := cloneIP(iv.First)
		for {
			if !fn(cloneIP(cur)) {
				return
			}
			if cur.Equal(iv.Last) {
				break
			}
			incIP(cur)
			if ipGreater(cur, iv.Last) {
				break
			}
		}
	}
}

// Count returns the total number of addresses covered by the range.
func (s IPRangeSpec) Count() int {
	n := 0
	s.Each(func(net.IP) bool { n++; return true })
	return n
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

func ipGreater(a, b net.IP) bool {
	a16, b16 := a.To16(), b.To16()
	for i := range a16 {
		if a16[i] != b16[i] {
			return a16[i] > b16[i]
		}
	}
	return false
}

// PortRange is the same union-of-intervals grammar applied to ports
// ("ports" field on a Check, e.g. "22,80,8000-8100").
type PortRange struct {
	Intervals [][2]int
}

// ParsePortRange parses a comma-separated list of ports and port ranges.
func ParsePortRange(s string) (PortRange, error) {
	var pr PortRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "-"); idx >= 0 {
			lo, err1 := strconv.Atoi(part[:idx])
			hi, err2 := strconv.Atoi(part[idx+1:])
			if err1 != nil || err2 != nil || lo < 0 || hi > 65535 || lo > hi {
				return PortRange{}, fmt.Errorf("bad port range %q", part)
			}
			pr.Intervals = append(pr.Intervals, [2]int{lo, hi})
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil || p < 0 || p > 65535 {
			return PortRange{}, fmt.Errorf("bad port %q", part)
		}
		pr.Intervals = append(pr.Intervals, [2]int{p, p})
	}
	if len(pr.Intervals) == 0 {
		return PortRange{}, fmt.Errorf("empty port range")
	}
	return pr, nil
}

// Each calls fn for every port in the range, ascending, stopping early if
// fn returns false.
func (pr PortRange) Each(fn func(port int) bool) {
	for _, iv := range pr.Intervals {
		for p := iv[0]; p <= iv[1]; p++ {
			if !fn(p) {
				return
			}
		}
	}
}

// Count returns the number of ports covered.
func (pr PortRange) Count() int {
	n := 0
	for _, iv := range pr.Intervals {
		n += iv[1] - iv[0] + 1
	}
	return n
}
