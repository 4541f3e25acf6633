package addrbook

import "testing"

func TestAddressIsRoutable(t *testing.T) {
	cases := []struct {
		name string
		addr Address
		want bool
	}{
		{"valid ipv4", Address{NetAddr: NetAddr{Net: NetworkIPv4, IP: []byte{1, 2, 3, 4}}, Port: 8333}, true},
		{"empty ip", Address{NetAddr: NetAddr{Net: NetworkIPv4, IP: nil}, Port: 8333}, false},
		{"wrong length ipv4", Address{NetAddr: NetAddr{Net: NetworkIPv4, IP: []byte{1, 2, 3}}, Port: 8333}, false},
		{"valid ipv6", Address{NetAddr: NetAddr{Net: NetworkIPv6, IP: make([]byte, 16)}, Port: 1}, true},
		{"valid torv3", Address{NetAddr: NetAddr{Net: NetworkTorV3, IP: make([]byte, 32)}, Port: 1}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.addr.IsRoutable(); got != c.want {
				t.Errorf("IsRoutable() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestAddressEqual(t *testing.T) {
	a := Address{NetAddr: NetAddr{Net: NetworkIPv4, IP: []byte{1, 2, 3, 4}}, Port: 1}
	b := Address{NetAddr: NetAddr{Net: NetworkIPv4, IP: []byte{1, 2, 3, 4}}, Port: 1}
	c := Address{NetAddr: NetAddr{Net: NetworkIPv4, IP: []byte{1, 2, 3, 4}}, Port: 2}

	if !a.Equal(b) {
		t.Errorf("expected a to equal b")
	}
	if a.Equal(c) {
		t.Errorf("expected a to not equal c (different port)")
	}
}

func TestDefaultNetGroupIPv4SameSlash16(t *testing.T) {
	a := NetAddr{Net: NetworkIPv4, IP: []byte{203, 0, 1, 1}}
	b := NetAddr{Net: NetworkIPv4, IP: []byte{203, 0, 99, 250}}
	c := NetAddr{Net: NetworkIPv4, IP: []byte{203, 1, 1, 1}}

	if string(DefaultNetGroup(a)) != string(DefaultNetGroup(b)) {
		t.Errorf("expected same /16 group for a and b")
	}
	if string(DefaultNetGroup(a)) == string(DefaultNetGroup(c)) {
		t.Errorf("expected different group for different /16")
	}
}
