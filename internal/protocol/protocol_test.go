package protocol

import "testing"

func TestJoinRoundTrip(t *testing.T) {
	msg := EncodeJoin(42)
	tag, rest, err := DecodeTag(msg)
	if err != nil || tag != TagJoin {
		t.Fatalf("tag = %v, err = %v", tag, err)
	}
	got, err := DecodeJoin(rest)
	if err != nil || got != 42 {
		t.Fatalf("DecodeJoin = %v, %v", got, err)
	}
}

func TestMaskRoundTrip(t *testing.T) {
	msg := EncodeMask("alice")
	_, rest, _ := DecodeTag(msg)
	got, err := DecodeMask(rest)
	if err != nil || got != "alice" {
		t.Fatalf("DecodeMask = %q, %v", got, err)
	}
}

func TestMaskRejectsBadUTF8(t *testing.T) {
	_, err := DecodeMask([]byte{0xff, 0xfe})
	if err != ErrBadUTF8 {
		t.Fatalf("expected ErrBadUTF8, got %v", err)
	}
}

func TestChatForwardRoundTrip(t *testing.T) {
	want := ChatForward{SenderMask: "bob", IsSelf: true, Message: "hi2"}
	msg := EncodeChatForward(want)
	_, rest, _ := DecodeTag(msg)
	got, err := DecodeChatForward(rest)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestChatForwardIsSelfFalse(t *testing.T) {
	want := ChatForward{SenderMask: "carol", IsSelf: false, Message: "hi2"}
	msg := EncodeChatForward(want)
	_, rest, _ := DecodeTag(msg)
	got, err := DecodeChatForward(rest)
	if err != nil || got.IsSelf {
		t.Fatalf("got %+v, err %v", got, err)
	}
}

func TestCtrlRoundTrip(t *testing.T) {
	msg := EncodeCtrl(CtrlDeafen)
	_, rest, _ := DecodeTag(msg)
	got, err := DecodeCtrl(rest)
	if err != nil || got != CtrlDeafen {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFlowRenickRoundTrip(t *testing.T) {
	msg := EncodeFlowRenick("carol", "carlos")
	_, rest, _ := DecodeTag(msg)
	oldName, newName, err := DecodeFlowRenick(rest)
	if err != nil || oldName != "carol" || newName != "carlos" {
		t.Fatalf("got %q %q, err %v", oldName, newName, err)
	}
}

func TestListReplyRoundTrip(t *testing.T) {
	want := ListReply{
		CurrentChannelID: 1,
		Channels: []ListChannel{
			{
				Name:          "general",
				ChannelID:     1,
				UnmaskedCount: 0,
				MaskedCount:   2,
				Users: []ListUser{
					{Mask: "alice", Mute: false, Deaf: false},
					{Mask: "bob", Mute: true, Deaf: false},
				},
			},
		},
	}
	msg := EncodeListReply(want)
	_, rest, _ := DecodeTag(msg)
	got, err := DecodeListReply(rest)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.CurrentChannelID != want.CurrentChannelID || len(got.Channels) != 1 {
		t.Fatalf("got %+v", got)
	}
	gc := got.Channels[0]
	wc := want.Channels[0]
	if gc.Name != wc.Name || gc.ChannelID != wc.ChannelID || len(gc.Users) != 2 {
		t.Fatalf("channel mismatch: %+v", gc)
	}
	if gc.Users[1].Mute != true {
		t.Fatalf("mute flag lost: %+v", gc.Users[1])
	}
}

func TestSyncCommandsRoundTrip(t *testing.T) {
	want := []CommandDescriptor{
		{Name: "/nick", Description: "rename", Usage: "/nick <name>", Category: CategoryUser, Aliases: []string{"/name"}},
		{Name: "/kick", Description: "kick", Usage: "/kick <user>", Category: CategoryAdmin, RequireAuth: true, AdminOnly: true},
	}
	msg := EncodeSyncCommandsReply(want)
	_, rest, _ := DecodeTag(msg)
	got, err := DecodeSyncCommandsReply(rest)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "/nick" || len(got[0].Aliases) != 1 {
		t.Fatalf("got %+v", got)
	}
	if !got[1].AdminOnly || !got[1].RequireAuth {
		t.Fatalf("flags lost: %+v", got[1])
	}
}

func TestDecodeTagEmptyFails(t *testing.T) {
	if _, _, err := DecodeTag(nil); err == nil {
		t.Fatal("expected error for empty message")
	}
}
