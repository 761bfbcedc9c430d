// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sqlpilot/internal/pipeline"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// maxInputRunes bounds a single REPL input line.
const maxInputRunes = 2000

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive natural-language query session",
	Long: `The chat command starts an interactive session where questions in natural
language are turned into SQL, executed read-only against the configured
database, and answered in plain language. Ambiguous questions trigger a
clarification round before any SQL runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		r := &repl{
			app:       a,
			sessionID: "chat_" + uuid.NewString(),
			in:        bufio.NewReader(os.Stdin),
		}
		return r.run(cmd)
	},
}

// repl owns one interactive session.
type repl struct {
	app       *app
	sessionID string
	in        *bufio.Reader
	showSQL   bool
}

func (r *repl) run(cmd *cobra.Command) error {
	r.printWelcome()

	for {
		input, err := r.readLine("💬 请输入您的问题: ")
		if err != nil {
			if err == io.EOF {
				pterm.Println("\n👋 感谢使用，再见！")
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}
		if utf8.RuneCountInString(input) > maxInputRunes {
			pterm.Printf("⚠️  输入过长，请控制在%d个字符以内\n\n", maxInputRunes)
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit", "q", "退出":
			pterm.Println("\n👋 感谢使用，再见！")
			return nil
		case "help":
			r.printHelp()
			continue
		case "clear":
			r.app.sessions.Get(r.sessionID).Clear()
			pterm.Println("\n💡 对话历史已清空\n")
			continue
		case "sql":
			r.showSQL = !r.showSQL
			status := "隐藏"
			if r.showSQL {
				status = "显示"
			}
			pterm.Printf("\n💡 SQL查询已%s\n\n", status)
			continue
		}

		r.process(cmd, pipeline.Request{
			SessionID: r.sessionID,
			UserID:    "user",
			Question:  input,
		})
		pterm.Println()
	}
}

// process runs one turn and renders the outcome, looping through
// clarification rounds until the pipeline reaches a terminal state.
func (r *repl) process(cmd *cobra.Command, req pipeline.Request) {
	stop := startInlineSpinner(os.Stdout, "正在处理...", []string{"-", "\\", "|", "/"}, 100*time.Millisecond)
	st, err := r.app.orch.Run(cmd.Context(), req)
	stop()
	if err != nil {
		pterm.Println("❌ 发生错误：" + err.Error())
		return
	}

	switch st.Outcome {
	case pipeline.OutcomeAwaitingClarification:
		answer := r.askClarification(st)
		if answer == "" {
			pterm.Println("⚠️  已跳过澄清，继续处理...")
			answer = "继续执行查询"
		}
		r.process(cmd, pipeline.Request{
			SessionID:           r.sessionID,
			UserID:              req.UserID,
			Question:            req.Question,
			ClarificationAnswer: answer,
		})

	case pipeline.OutcomeChat:
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("💬 回复")).
			Println(st.ChatResponse)

	case pipeline.OutcomeAnswered:
		body := st.Answer
		if body == "" {
			body = previewRows(st)
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("📊 查询结果")).
			Println(body)
		if r.showSQL && st.CandidateSQL != "" {
			pterm.Println()
			pterm.Println("💻 执行的SQL查询：")
			pterm.Println("   " + st.CandidateSQL)
		}

	case pipeline.OutcomeFailed:
		msg := "未知错误"
		if st.Err != nil {
			msg = st.Err.Error()
		}
		pterm.Println("❌ 查询执行失败：" + msg)
	}
}

// askClarification shows the pending question with numbered options and reads
// the user's choice. Empty return means the user skipped.
func (r *repl) askClarification(st *pipeline.State) string {
	pterm.Println()
	pterm.Println("❓ " + st.Clarification.Question)
	if len(st.Clarification.Options) > 0 {
		pterm.Println("\n请选择：")
		for i, opt := range st.Clarification.Options {
			pterm.Printf("  %d. %s\n", i+1, opt)
		}
	}
	pterm.Printf("\n💡 提示：输入选项编号，或直接输入答案（第 %d/%d 次澄清）\n", st.Clarification.Count, r.app.cfg.Pipeline.MaxClarifications)

	input, err := r.readLine("> ")
	if err != nil {
		return ""
	}
	switch strings.ToLower(input) {
	case "", "skip", "跳过":
		return ""
	}
	if idx, err := strconv.Atoi(input); err == nil {
		if idx >= 1 && idx <= len(st.Clarification.Options) {
			return st.Clarification.Options[idx-1]
		}
	}
	return input
}

// previewRows renders raw result rows when no answer text was produced:
// up to 10 rows in full, otherwise the first 5 plus a remainder count.
func previewRows(st *pipeline.State) string {
	res := st.Execution
	if res == nil || res.RowCount == 0 {
		return "查询结果为空，没有找到匹配的数据。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✓ 查询成功，共找到 %d 条记录\n", res.RowCount)
	shown := res.Rows
	if res.RowCount > 10 {
		shown = res.Rows[:5]
	}
	for i, row := range shown {
		fmt.Fprintf(&b, "  [%d] %v\n", i+1, row)
	}
	if res.RowCount > 10 {
		fmt.Fprintf(&b, "  ... 还有 %d 条记录", res.RowCount-5)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *repl) readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (r *repl) printWelcome() {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("🤖 sqlpilot 自然语言查询助手")).
		Println(strings.Join([]string{
			"直接用自然语言提问，例如：'查询每个客户的订单数量'",
			"也可以进行普通对话，例如：'你好'、'你是谁'",
			"支持多轮对话，可以使用'那'、'他们'等指代词",
			"输入 'help' 查看帮助，'quit' 退出",
		}, "\n"))
	pterm.Println()
}

func (r *repl) printHelp() {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("📖 使用帮助")).
		Println(strings.Join([]string{
			"数据查询（直接输入您的问题）：",
			"  • 查询每个客户的订单数量",
			"  • 统计每个城市的客户数量",
			"  • 查询销售额最高的前10个客户",
			"",
			"多轮对话：",
			"  • 查询每个客户的订单数量",
			"  • 那销售额最高的客户是谁？",
			"",
			"命令：",
			"  help          - 显示此帮助",
			"  quit / exit   - 退出程序",
			"  clear         - 清空对话历史",
			"  sql           - 切换显示/隐藏SQL查询",
		}, "\n"))
	pterm.Println()
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
