package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/hub"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/transcript"
)

type lineView struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type stateView struct {
	Session        string `json:"session"`
	State          string `json:"state"`
	Mic            string `json:"mic,omitempty"`
	QuestionNumber int    `json:"question_number"`
	QuestionsTotal int    `json:"questions_total"`
	Viewers        int    `json:"viewers"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "session": s.session})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	s.mu.RLock()
	view := stateView{
		Session:        s.session,
		State:          s.state,
		Mic:            s.mic,
		QuestionNumber: s.current,
		QuestionsTotal: s.total,
	}
	s.mu.RUnlock()
	view.Viewers = s.live.ClientCount()
	return c.JSON(view)
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]lineView, len(s.lines))
	for i, l := range s.lines {
		views[i] = lineView{Label: l.Label, Text: l.Text}
	}
	return c.JSON(fiber.Map{"transcript": views})
}

func (s *Server) handleTranscriptText(c *fiber.Ctx) error {
	s.mu.RLock()
	lines := append([]transcript.Line(nil), s.lines...)
	s.mu.RUnlock()

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="transcript.txt"`)
	return c.SendString(transcript.ExportText(lines))
}

func (s *Server) handleLive(conn *websocket.Conn) {
	client := hub.NewClient(s.live, conn)
	client.Run()
}

const indexPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Interview Monitor</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 720px; margin: 2rem auto; }
#state { color: #666; }
.line { margin: 0.5rem 0; }
.label { font-weight: 600; }
</style></head>
<body>
<h1>Interview Monitor</h1>
<p id="state">connecting...</p>
<p id="mic"></p>
<p id="progress"></p>
<div id="transcript"></div>
<p><a href="/transcript.txt">Download transcript</a></p>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws/live");
ws.onmessage = (e) => {
  const u = JSON.parse(e.data);
  if (u.type === "state") {
    document.getElementById("state").textContent = "State: " + u.state;
  } else if (u.type === "mic") {
    document.getElementById("mic").textContent = "Mic: " + u.mic;
  } else if (u.type === "progress") {
    document.getElementById("progress").textContent =
      "Question " + u.question_number + " of " + u.questions_total;
  } else if (u.type === "transcript") {
    const div = document.createElement("div");
    div.className = "line";
    const label = document.createElement("span");
    label.className = "label";
    label.textContent = u.label + ": ";
    div.appendChild(label);
    div.appendChild(document.createTextNode(u.text));
    document.getElementById("transcript").appendChild(div);
    div.scrollIntoView();
  }
};
ws.onclose = () => {
  document.getElementById("state").textContent = "disconnected";
};
</script>
</body>
</html>`

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(indexPage)
}
