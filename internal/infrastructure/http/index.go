package http

// indexHTML is the single-page chat UI. Answers stream in over SSE and are
// replaced by the server-rendered HTML when the stream ends.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: system-ui, sans-serif; background: #f5f6fa; margin: 0; }
        .container { max-width: 820px; margin: 0 auto; padding: 1.5rem; }
        header h1 { margin: 0; color: #1e3a8a; }
        .subtitle { color: #64748b; margin-top: .25rem; }
        #chat-container { height: 65vh; overflow-y: auto; background: #fff; border-radius: 12px; padding: 1rem; }
        .message { padding: .75rem 1rem; border-radius: 10px; margin: .5rem 0; line-height: 1.5; }
        .message.user { background: #1e3a8a; color: #fff; margin-left: 20%; }
        .message.assistant { background: #eef2ff; margin-right: 10%; }
        .error { color: #b91c1c; }
        form { display: flex; gap: .5rem; margin-top: 1rem; }
        input { flex: 1; padding: .75rem; border-radius: 8px; border: 1px solid #cbd5e1; }
        button { padding: .75rem 1.25rem; border: 0; border-radius: 8px; background: #1e3a8a; color: #fff; cursor: pointer; }
        button.secondary { background: #94a3b8; }
        .cursor { animation: blink 1s step-start infinite; }
        @keyframes blink { 50% { opacity: 0; } }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            <p class="subtitle">{{.Subtitle}}</p>
        </header>

        <main>
            <div id="chat-container">
                <div id="messages">
                    <div class="message assistant">Ask me about attendance, grading, exams or any other academic policy.</div>
                </div>
            </div>

            <form id="query-form" onsubmit="sendQuery(event)">
                <input type="text" id="query-input" name="query" placeholder="Ask about academic policies..." autocomplete="off" required>
                <button type="submit" id="send-btn">Send</button>
                <button type="button" class="secondary" onclick="clearChat()">Clear</button>
            </form>
        </main>
    </div>

    <script>
        function sendQuery(e) {
            e.preventDefault();
            const input = document.getElementById('query-input');
            const messages = document.getElementById('messages');
            const container = document.getElementById('chat-container');
            const query = input.value.trim();
            if (!query) return;

            messages.innerHTML += '<div class="message user">' + escapeHtml(query) + '</div>';
            const responseId = 'response-' + Date.now();
            messages.innerHTML += '<div class="message assistant" id="' + responseId + '"><span class="cursor">▊</span></div>';
            input.value = '';
            container.scrollTop = container.scrollHeight;

            const eventSource = new EventSource('/api/query/stream?q=' + encodeURIComponent(query));
            const responseEl = document.getElementById(responseId);
            let fullResponse = '';

            eventSource.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (data.done) {
                    eventSource.close();
                    responseEl.innerHTML = data.html || escapeHtml(fullResponse) || 'No response';
                } else if (data.content) {
                    fullResponse += data.content;
                    responseEl.innerHTML = escapeHtml(fullResponse) + '<span class="cursor">▊</span>';
                    container.scrollTop = container.scrollHeight;
                }
            };

            eventSource.onerror = function() {
                eventSource.close();
                responseEl.innerHTML = fullResponse ? escapeHtml(fullResponse) : '<span class="error">Connection error</span>';
            };
        }

        function clearChat() {
            fetch('/api/clear', { method: 'POST' }).then(function() {
                document.getElementById('messages').innerHTML = '';
            });
        }

        function escapeHtml(text) {
            const div = document.createElement('div');
            div.textContent = text;
            return div.innerHTML;
        }
    </script>
</body>
</html>`
