package session

import (
	"context"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
)

// handshakeCloud drives the three-step V2 handshake: CONNECT, APP_CONNECT,
// AUTHORIZE. Caller holds s.mu and has already set s.stage = TCPOpen.
func (s *Session) handshakeCloud(ctx context.Context) error {
	// Step 1: CONNECT.
	connectFrame := isecnet.EncodeV2(isecnet.CmdConnect, []byte{0x00}, [2]byte{0, 0}, nil)
	if err := s.writeLocked(connectFrame); err != nil {
		return err
	}
	resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
	if err != nil {
		return err
	}
	if len(resp.Payload) < 1 {
		return gwerr.New(gwerr.ProtocolError, "connect reply too short")
	}
	xb := resp.Payload[0]
	s.xorByte = &xb
	s.stage = ServerOK

	// Step 2: APP_CONNECT, XOR-obfuscated with the negotiated byte.
	// Obfuscation applies only to this one request; its reply, AUTHORIZE
	// and every later frame travel in the clear.
	appPayload := []byte("AMT8000-" + s.cfg.MAC)
	appFrame := isecnet.EncodeV2(isecnet.CmdAppConnect, appPayload, [2]byte{0, 0}, s.xorByte)
	if err := s.writeLocked(appFrame); err != nil {
		return err
	}
	appResp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
	if err != nil {
		return err
	}
	if len(appResp.Payload) < 3 {
		return gwerr.New(gwerr.ProtocolError, "app_connect reply too short")
	}
	reason := appResp.Payload[0]
	if reason != isecnet.AppConnectSuccess {
		return mapAppConnectFailure(reason)
	}
	s.sourceID = [2]byte{appResp.Payload[1], appResp.Payload[2]}
	s.stage = AppOK

	// Step 3: AUTHORIZE.
	packed, err := isecnet.PackPassword(s.cfg.Password)
	if err != nil {
		return err
	}
	authPayload := append([]byte{0x03}, packed[:]...)
	authPayload = append(authPayload, 0x00, 0x01)
	authFrame := isecnet.EncodeV2(isecnet.CmdAuthorize, authPayload, s.sourceID, nil)
	if err := s.writeLocked(authFrame); err != nil {
		return err
	}
	authResp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
	if err != nil {
		return err
	}
	if len(authResp.Payload) < 1 {
		return gwerr.New(gwerr.ProtocolError, "authorize reply too short")
	}
	return mapAuthorizeReason(authResp.Payload[0])
}

func mapAppConnectFailure(reason byte) error {
	switch reason {
	case isecnet.AppConnectNotConnected:
		return gwerr.New(gwerr.ConnectionUnavailable, "not_connected")
	case isecnet.AppConnectCentralNotFound:
		return gwerr.New(gwerr.ConnectionUnavailable, "central_not_found")
	case isecnet.AppConnectCentralBusy:
		return gwerr.New(gwerr.ConnectionUnavailable, "central_busy")
	case isecnet.AppConnectCentralOffline:
		return gwerr.New(gwerr.ConnectionUnavailable, "central_offline")
	default:
		return gwerr.New(gwerr.ConnectionUnavailable, "app_connect rejected")
	}
}

func mapAuthorizeReason(reason byte) error {
	switch reason {
	case isecnet.AuthorizeAccepted:
		return nil
	case isecnet.AuthorizeInvalidPassword:
		return gwerr.NewWithReason(gwerr.AuthRejected, "invalid_password", "panel rejected password")
	case isecnet.AuthorizeBlockedUser:
		return gwerr.NewWithReason(gwerr.AuthRejected, "blocked_user", "panel user blocked")
	case isecnet.AuthorizeNoPermission:
		return gwerr.NewWithReason(gwerr.AuthRejected, "no_permission", "panel user lacks permission")
	default:
		return gwerr.NewWithReason(gwerr.AuthRejected, "unknown", "panel rejected authorization")
	}
}

// handshakeIPReceiver drives the two-step V1 handshake: GET_BYTE,
// APP_CONNECT. There is no separate authorize step; the password is
// embedded in every subsequent command instead.
func (s *Session) handshakeIPReceiver(ctx context.Context) error {
	getByte := isecnet.BuildGetByte()
	if err := s.writeLocked(getByte); err != nil {
		return err
	}
	resp, err := s.readHandshakeFrameLocked(4)
	if err != nil {
		return err
	}
	if resp[2] != 0x01 {
		return gwerr.New(gwerr.ConnectionUnavailable, "get_byte rejected")
	}
	s.stage = ServerOK

	appConnect := isecnet.BuildAppConnectV1(s.cfg.ReceiverAccount)
	if err := s.writeLocked(appConnect); err != nil {
		return err
	}
	appResp, err := s.readHandshakeFrameLocked(4)
	if err != nil {
		return err
	}
	if appResp[2] != 0x01 {
		return gwerr.New(gwerr.ConnectionUnavailable, "not_connected")
	}
	s.stage = AppOK
	return nil
}
