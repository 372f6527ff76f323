// Package chesssession 是一個即時西洋棋對局協調服務。
//
// 兩名玩家透過 WebSocket 進入同一盤棋，伺服器負責配對、驗證輪次、
// 轉發走子，並讓觀戰者同步盤面。棋規本身交給規則引擎判斷。
//
// # 對局生命週期
//
// 對局依座位狀態推進：
//   - empty：剛建立，沒有人入座
//   - awaiting_opponent：先手已入座，等待後手
//   - active：雙方入座，可以走子
//   - terminated：先手離開、無人留下、閒置回收或服務關閉
//
// 先手離開會關閉整盤棋；後手離開則保留對局，等待新的後手。
// 從未有人入座的對局由背景回收定期清除。
//
// # 隨機配對
//
// 以保留代號 "random" 與角色 player 加入會進入單一名額的配對佇列。
// 佇列為空時排入等待，佇列中的對局仍有效時直接配對，失效時另開新局並讓
// 請求方坐後手。
//
// # WebSocket 協定
//
// 雙向訊息皆為 {"event": "...", "data": ...}。
// 入站：joinIntent（舊名 joinRoom）、submitMove（舊名 move）。
// 出站：playerRole、spectatorRole、waitingForOpponent、gameStart、gameActive、
// noActiveGame、boardState、move、invalidMove、opponentLeft、roomClosed、
// joinedRoom、gameOver。
//
// # 架構
//
//   - internal/rules：規則引擎介面與 notnil/chess 實作
//   - internal/session：註冊表、配對佇列、對局狀態機
//   - internal/transport：WebSocket Hub、心跳、訊息編解碼
//   - internal/api：gin 路由（建立對局、查詢、歸檔、健康檢查）
//   - internal/feed：生命週期事件發布到 NATS 或 Redis
//   - internal/archive：已結束對局寫入 PostgreSQL（或記憶體）
//   - internal/config：YAML 設定與驗證
//
// # 使用範例
//
// 啟動服務器：
//
//	go run ./cmd/server -config config.example.yaml
//
// 建立對局並以主持人身分加入：
//
//	curl -X POST localhost:3000/api/v1/sessions
//	{"event":"joinIntent","data":{"sessionId":"<id>","role":"host"}}
//
// # 配置選項
//
//   - -config：YAML 設定檔
//   - -port：服務監聽端口（預設 3000）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package chesssession
