package gate

const (
	// Gate.io API v4 基础 URL
	GateBaseURL = "https://api.gateio.ws/api/v4"

	// Gate.io WebSocket URL (USDT永续合约)
	GateWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

	// 渠道标识
	GateChannelID = "opensqt"
)
