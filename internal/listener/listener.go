package listener

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "listener")

// Provisioner 行情监听进程编排
// 开始交易前拉起对应交易对的行情监听进程，退出时回收；
// 属于带外副作用，不影响执行核心的正确性
type Provisioner interface {
	Provision(ctx context.Context, exchange, pair string) error
	Teardown() error
}

// Noop 空实现（行情监听由外部基础设施托管时使用）
type Noop struct{}

// Provision 空操作
func (Noop) Provision(ctx context.Context, exchange, pair string) error { return nil }

// Teardown 空操作
func (Noop) Teardown() error { return nil }

// ExecProvisioner 以子进程方式拉起监听器
type ExecProvisioner struct {
	command string
	args    []string

	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

// NewExecProvisioner 创建子进程编排器；command 是监听器可执行文件
func NewExecProvisioner(command string, args ...string) *ExecProvisioner {
	return &ExecProvisioner{
		command: command,
		args:    args,
		procs:   make(map[string]*exec.Cmd),
	}
}

// Provision 为某交易所+交易对拉起监听进程（幂等）
func (p *ExecProvisioner) Provision(ctx context.Context, exchange, pair string) error {
	key := exchange + ":" + pair
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, running := p.procs[key]; running {
		return nil
	}

	args := append(append([]string{}, p.args...), "--exchange", exchange, "--pair", pair)
	cmd := exec.Command(p.command, args...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "listener: start %s", key)
	}
	p.procs[key] = cmd
	log.Infof("🚀 行情监听已拉起: %s pid=%d", key, cmd.Process.Pid)

	// 进程意外退出时清掉登记，允许下次重新拉起
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		delete(p.procs, key)
		p.mu.Unlock()
		if err != nil {
			log.Warnf("⚠️ 行情监听退出: %s err=%v", key, err)
		}
	}()
	return nil
}

// Teardown 回收全部监听进程
func (p *ExecProvisioner) Teardown() error {
	p.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(p.procs))
	for _, cmd := range p.procs {
		cmds = append(cmds, cmd)
	}
	p.mu.Unlock()

	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			log.Warnf("⚠️ 行情监听回收失败: pid=%d err=%v", cmd.Process.Pid, err)
		}
	}
	// 给 Wait goroutine 一点时间清理登记
	time.Sleep(10 * time.Millisecond)
	log.Infof("🧹 行情监听已全部回收")
	return nil
}
