package application

import "go.uber.org/zap"

// Reporter é o destino best-effort dos erros de telemetria: registra e segue.
// Nada que passa por aqui volta para o caminho de dados da conexão.
type Reporter struct {
	Logger *zap.Logger
	// OnError é chamado com a operação que falhou (ex.: métricas).
	OnError func(op string)
}

// Report loga err (se houver) e devolve true quando houve falha.
func (r Reporter) Report(op string, err error, fields ...zap.Field) bool {
	if err == nil {
		return false
	}
	if r.Logger != nil {
		r.Logger.Warn("telemetry update failed",
			append(fields, zap.String("op", op), zap.Error(err))...)
	}
	if r.OnError != nil {
		r.OnError(op)
	}
	return true
}
