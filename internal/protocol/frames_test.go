package protocol

import "testing"

func TestSubTypeSetMatchers(t *testing.T) {
	set := SubTypeSet{
		C2SActionRequest:    [2]uint16{0x1a, 0x1b},
		S2CActionEffects:    [5]uint16{0x20, 0x21, 0x22, 0x23, 0x24},
		S2CActorControlSelf: 0x30,
		S2CActorControl:     0x31,
		S2CActorCast:        0x32,
	}

	if !set.IsActionRequest(0x1a) || !set.IsActionRequest(0x1b) {
		t.Fatalf("expected both configured action request sub-types to match")
	}
	if set.IsActionRequest(0x1c) {
		t.Fatalf("unexpected match for unconfigured sub-type")
	}
	for _, sub := range set.S2CActionEffects {
		if !set.IsActionEffect(sub) {
			t.Fatalf("expected sub-type %#x to match action effect set", sub)
		}
	}
	if set.IsActionEffect(0x99) {
		t.Fatalf("unexpected action effect match")
	}
	if !set.IsActorControlSelf(0x30) || !set.IsActorControl(0x31) || !set.IsActorCast(0x32) {
		t.Fatalf("expected single-value discriminants to match their configured sub-type")
	}
}
